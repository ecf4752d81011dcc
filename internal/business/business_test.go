package business

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/falachefe/consultant/internal/client"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func newFinance(url string) *Finance {
	f := NewFinance(client.New(url))
	f.now = func() time.Time { return fixedNow }
	return f
}

func TestResolvePeriod(t *testing.T) {
	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"current_month", "2025-03-01", "2025-03-15", false},
		{"2024-12", "2024-12-01", "2025-01-01", false},
		{"2025-02", "2025-02-01", "2025-03-01", false},
		{"", "2025-02-01", "2025-03-15", false},
		{"last_month", "2025-02-01", "2025-03-15", false},
		{"2025-13", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := ResolvePeriod(tt.period, fixedNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start.Format(dateLayout))
			assert.Equal(t, tt.wantEnd, end.Format(dateLayout))
		})
	}
}

func financeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/financial/transactions", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "u1", r.URL.Query().Get("userId"))
			assert.Equal(t, "2025-03-01", r.URL.Query().Get("startDate"))
			assert.Equal(t, "2025-03-15", r.URL.Query().Get("endDate"))
			_, _ = w.Write([]byte(`{
				"success": true,
				"data": {
					"transactions": [
						{"id":"t1","type":"entrada","amountInReais":5000,"category":"vendas","date":"2025-03-02"},
						{"id":"t2","type":"saida","amountInReais":1200.5,"category":"aluguel","date":"2025-03-05"},
						{"id":"t3","type":"saida","amountInReais":300,"category":"aluguel","date":"2025-03-06"}
					],
					"summary": {"total":3,"entradas":5000,"saidas":1500.5,"saldo":3499.5}
				}
			}`))
		case http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["userId"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"userId obrigatório"}`))
				return
			}
			assert.Equal(t, "saida", body["type"])
			assert.Equal(t, 150.0, body["amount"])
			assert.Equal(t, "2025-03-15", body["date"])
			assert.Equal(t, "Transação de saida", body["description"])
			meta := body["metadata"].(map[string]any)
			assert.Equal(t, "financial", meta["agent"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":"tx-42"}}`))
		}
	}))
}

func TestFinanceSummary(t *testing.T) {
	srv := financeServer(t)
	defer srv.Close()

	s, err := newFinance(srv.URL).Summary(context.Background(), "u1", PeriodCurrentMonth)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, s.Income)
	assert.Equal(t, 1500.5, s.Expense)
	assert.Equal(t, 3499.5, s.Balance)
	assert.Equal(t, 3, s.Count)
}

func TestFinanceTransactions(t *testing.T) {
	srv := financeServer(t)
	defer srv.Close()

	txs, err := newFinance(srv.URL).Transactions(context.Background(), "u1", PeriodCurrentMonth)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, Transaction{ID: "t2", Kind: KindExpense, Amount: 1200.5, Category: "aluguel", Date: "2025-03-05"}, txs[1])
}

func TestFinanceAddTransaction(t *testing.T) {
	srv := financeServer(t)
	defer srv.Close()
	f := newFinance(srv.URL)
	ctx := context.Background()

	id, err := f.AddTransaction(ctx, NewTransaction{UserID: "u1", Kind: KindExpense, Amount: 150, Category: "aluguel", Agent: "financial"})
	require.NoError(t, err)
	assert.Equal(t, "tx-42", id)

	_, err = f.AddTransaction(ctx, NewTransaction{UserID: "", Kind: KindExpense, Amount: 150, Category: "aluguel", Agent: "financial"})
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "userId obrigatório", statusErr.Message)

	_, err = f.AddTransaction(ctx, NewTransaction{UserID: "u1", Kind: "transfer", Amount: 1})
	assert.ErrorContains(t, err, "invalid transaction type")

	_, err = f.AddTransaction(ctx, NewTransaction{UserID: "u1", Kind: KindIncome, Amount: 0})
	assert.ErrorContains(t, err, "amount must be positive")

	_, err = f.AddTransaction(ctx, NewTransaction{UserID: "u1", Kind: KindIncome, Amount: 1, Date: "15/03/2025"})
	assert.ErrorContains(t, err, "invalid date")
}

func supabaseServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/rest/v1/user_onboarding":
			switch r.URL.Query().Get("user_id") {
			case "eq.u1":
				_, _ = w.Write([]byte(`[{
					"first_name":"Ana","last_name":"Souza","email":"ana@padaria.com",
					"whatsapp_phone":"5511999999999","company_name":"Padaria Pão Quente",
					"industry":"alimentação","company_size":"","position":"sócia",
					"is_completed":true,"created_at":"2025-01-10","company_id":"c1"
				}]`))
			case "eq.u2":
				_, _ = w.Write([]byte(`[{"first_name":"Bruno","company_name":"Oficina"}]`))
			default:
				_, _ = w.Write([]byte(`[]`))
			}
		case "/rest/v1/companies":
			assert.Equal(t, "eq.c1", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`[{"name":"Padaria Pão Quente","domain":"padaria.com","subscriptionPlan":"pro"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestLookupProfile(t *testing.T) {
	srv := supabaseServer(t)
	defer srv.Close()

	l := NewLookup(NewSupabaseClient(srv.URL, "key", time.Second), nil, nil, nil)
	got := l.Profile(context.Background(), "u1")

	assert.Contains(t, got[models.TaskKeyUserProfile], "Nome: Ana Souza")
	assert.Contains(t, got[models.TaskKeyUserProfile], "Onboarding completo: Sim")
	assert.Contains(t, got[models.TaskKeyCompanyContext], "Empresa: Padaria Pão Quente")
	assert.Contains(t, got[models.TaskKeyCompanyContext], "Tamanho: não informado")
	assert.Contains(t, got[models.TaskKeyCompanyContext], "Plano: pro")

	got = l.Profile(context.Background(), "u2")
	assert.Contains(t, got[models.TaskKeyUserProfile], "Email: não informado")
	assert.NotContains(t, got[models.TaskKeyCompanyContext], "Plano:")
}

func TestLookupProfileDegrades(t *testing.T) {
	srv := supabaseServer(t)
	defer srv.Close()
	m := metrics.NewCollector()

	tests := []struct {
		name   string
		lookup *Lookup
		userID string
	}{
		{"unknown user", NewLookup(NewSupabaseClient(srv.URL, "key", time.Second), nil, nil, m), "missing"},
		{"not configured", NewLookup(NewSupabaseClient("", "", time.Second), nil, nil, m), "u1"},
		{"unreachable", NewLookup(NewSupabaseClient("http://127.0.0.1:1", "key", time.Second), nil, nil, m), "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.lookup.Profile(context.Background(), tt.userID)
			assert.Equal(t, PlaceholderProfile, got[models.TaskKeyUserProfile])
			assert.Equal(t, PlaceholderCompany, got[models.TaskKeyCompanyContext])
		})
	}
	assert.Equal(t, int64(3), m.Snapshot().Counters[metrics.CounterEnrichmentDegraded])
}

func TestLookupFinancialSummary(t *testing.T) {
	srv := financeServer(t)
	defer srv.Close()

	l := NewLookup(nil, newFinance(srv.URL), nil, nil)
	got := l.FinancialSummary(context.Background(), "u1")
	assert.Equal(t, "Entradas: R$ 5.000,00 | Saídas: R$ 1.500,50 | Saldo: R$ 3.499,50 | 3 transações entre 01/03/2025 e 15/03/2025", got)

	assert.Equal(t, PlaceholderFinancial, NewLookup(nil, nil, nil, nil).FinancialSummary(context.Background(), "u1"))
	assert.Equal(t, PlaceholderFinancial, NewLookup(nil, newFinance("http://127.0.0.1:1"), nil, nil).FinancialSummary(context.Background(), "u1"))
}

func TestFormatBRL(t *testing.T) {
	tests := map[float64]string{
		0:          "R$ 0,00",
		5:          "R$ 5,00",
		1234.56:    "R$ 1.234,56",
		1000000:    "R$ 1.000.000,00",
		-99.999:    "-R$ 100,00",
		123456.789: "R$ 123.456,79",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatBRL(in), in)
	}
}
