// Package business looks up the user, company and cash-flow data that give a
// specialist its context.
package business

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/client"
	"github.com/tidwall/gjson"
)

const dateLayout = "2006-01-02"

// Transaction kinds understood by the finance API.
const (
	KindIncome  = "entrada"
	KindExpense = "saida"
)

// Period names accepted by ResolvePeriod besides YYYY-MM.
const (
	PeriodCurrentMonth = "current_month"
	PeriodLastMonth    = "last_month"
)

// Summary is the aggregate returned for a date range.
type Summary struct {
	Income  float64
	Expense float64
	Balance float64
	Count   int
	Start   time.Time
	End     time.Time
}

// Transaction is one cash-flow entry.
type Transaction struct {
	ID          string
	Kind        string
	Amount      float64
	Category    string
	Description string
	Date        string
}

// NewTransaction is the input for recording a cash-flow entry.
type NewTransaction struct {
	UserID      string
	Kind        string
	Amount      float64
	Category    string
	Description string
	// Date is YYYY-MM-DD; empty means today.
	Date string
	// Agent is recorded in the entry metadata.
	Agent string
}

// Finance talks to the Falachefe financial API.
type Finance struct {
	api *client.Client
	now func() time.Time
}

// NewFinance creates a finance client over api.
func NewFinance(api *client.Client) *Finance {
	return &Finance{api: api, now: time.Now}
}

// ResolvePeriod turns a period name into a date range. "current_month" runs
// from the first of this month to now, "YYYY-MM" covers that calendar month,
// and anything else starts at the first day of last month.
func ResolvePeriod(period string, now time.Time) (time.Time, time.Time, error) {
	period = strings.TrimSpace(period)
	switch {
	case period == PeriodCurrentMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, now, nil
	case strings.Count(period, "-") == 1:
		month, err := time.ParseInLocation("2006-01", period, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q: use YYYY-MM", period)
		}
		return month, month.AddDate(0, 1, 0), nil
	default:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		return start, now, nil
	}
}

func (f *Finance) fetch(ctx context.Context, userID, period string) (gjson.Result, time.Time, time.Time, error) {
	start, end, err := ResolvePeriod(period, f.now())
	if err != nil {
		return gjson.Result{}, start, end, err
	}
	res, err := f.api.Get(ctx, "/api/financial/transactions", url.Values{
		"userId":    {userID},
		"startDate": {start.Format(dateLayout)},
		"endDate":   {end.Format(dateLayout)},
	})
	if err != nil {
		return gjson.Result{}, start, end, fmt.Errorf("list transactions: %w", err)
	}
	return res, start, end, nil
}

// Summary returns totals for userID over period.
func (f *Finance) Summary(ctx context.Context, userID, period string) (Summary, error) {
	res, start, end, err := f.fetch(ctx, userID, period)
	if err != nil {
		return Summary{}, err
	}
	s := res.Get("data.summary")
	return Summary{
		Income:  s.Get("entradas").Float(),
		Expense: s.Get("saidas").Float(),
		Balance: s.Get("saldo").Float(),
		Count:   int(s.Get("total").Int()),
		Start:   start,
		End:     end,
	}, nil
}

// Transactions lists entries for userID over period.
func (f *Finance) Transactions(ctx context.Context, userID, period string) ([]Transaction, error) {
	res, _, _, err := f.fetch(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	var out []Transaction
	res.Get("data.transactions").ForEach(func(_, t gjson.Result) bool {
		amount := t.Get("amountInReais")
		if !amount.Exists() {
			amount = t.Get("amount")
		}
		out = append(out, Transaction{
			ID:          t.Get("id").String(),
			Kind:        t.Get("type").String(),
			Amount:      amount.Float(),
			Category:    t.Get("category").String(),
			Description: t.Get("description").String(),
			Date:        t.Get("date").String(),
		})
		return true
	})
	return out, nil
}

// AddTransaction records an entry and returns the id assigned by the API.
func (f *Finance) AddTransaction(ctx context.Context, tx NewTransaction) (string, error) {
	if tx.Kind != KindIncome && tx.Kind != KindExpense {
		return "", fmt.Errorf("invalid transaction type %q: use %q or %q", tx.Kind, KindIncome, KindExpense)
	}
	if tx.Amount <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}
	now := f.now()
	date := tx.Date
	if date == "" {
		date = now.Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q: use YYYY-MM-DD", date)
	}
	description := tx.Description
	if description == "" {
		description = "Transação de " + tx.Kind
	}

	res, err := f.api.Post(ctx, "/api/financial/transactions", map[string]any{
		"userId":      tx.UserID,
		"type":        tx.Kind,
		"amount":      tx.Amount,
		"description": description,
		"category":    tx.Category,
		"date":        date,
		"metadata": map[string]any{
			"source":    "falachefe",
			"agent":     tx.Agent,
			"timestamp": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("add transaction: %w", err)
	}
	return res.Get("data.id").String(), nil
}
