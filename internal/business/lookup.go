package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/client"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/tidwall/gjson"
)

// ErrLookupFailed marks a degraded enrichment. It is logged, never surfaced.
var ErrLookupFailed = errors.New("business data lookup failed")

// Placeholders used when a lookup fails.
const (
	PlaceholderProfile   = "Perfil do usuário indisponível no momento."
	PlaceholderCompany   = "Dados da empresa indisponíveis no momento."
	PlaceholderFinancial = "Resumo financeiro indisponível no momento."
)

const notInformed = "não informado"

// Lookup fetches enrichment data from Supabase and the finance API.
type Lookup struct {
	supabase *client.Client
	finance  *Finance
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewLookup creates a lookup. Either collaborator may be unconfigured, in which
// case its fields come back as placeholders.
func NewLookup(supabase *client.Client, finance *Finance, logger *slog.Logger, m *metrics.Collector) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{supabase: supabase, finance: finance, logger: logger, metrics: m}
}

// NewSupabaseClient builds a REST client with the service-role headers Supabase expects.
func NewSupabaseClient(baseURL, key string, timeout time.Duration) *client.Client {
	return client.New(baseURL,
		client.WithHeader("apikey", key),
		client.WithHeader("Authorization", "Bearer "+key),
		client.WithTimeout(timeout),
	)
}

// Profile returns the user_profile and company_context task fields for userID.
func (l *Lookup) Profile(ctx context.Context, userID string) map[string]string {
	out := map[string]string{
		models.TaskKeyUserProfile:    PlaceholderProfile,
		models.TaskKeyCompanyContext: PlaceholderCompany,
	}

	start := time.Now()
	user, err := l.onboarding(ctx, userID)
	l.metrics.RecordOutcome(metrics.OpEnrichment, time.Since(start), err)
	if err != nil {
		l.degraded("profile", userID, err)
		return out
	}

	out[models.TaskKeyUserProfile] = formatProfile(user)
	out[models.TaskKeyCompanyContext] = formatCompanyFromOnboarding(user)

	if companyID := user.Get("company_id").String(); companyID != "" {
		company, err := l.company(ctx, companyID)
		if err != nil {
			l.degraded("company", userID, err)
		} else {
			out[models.TaskKeyCompanyContext] += "\n" + formatCompany(company)
		}
	}
	return out
}

// FinancialSummary returns a one-paragraph cash-flow summary for the current month.
func (l *Lookup) FinancialSummary(ctx context.Context, userID string) string {
	if l.finance == nil || !l.finance.api.Configured() {
		l.degraded("financial_summary", userID, client.ErrNotConfigured)
		return PlaceholderFinancial
	}

	start := time.Now()
	s, err := l.finance.Summary(ctx, userID, PeriodCurrentMonth)
	l.metrics.RecordOutcome(metrics.OpEnrichment, time.Since(start), err)
	if err != nil {
		l.degraded("financial_summary", userID, err)
		return PlaceholderFinancial
	}
	return FormatSummaryLine(s)
}

func (l *Lookup) degraded(what, userID string, err error) {
	l.metrics.Increment(metrics.CounterEnrichmentDegraded)
	l.logger.Warn("enrichment degraded",
		"lookup", what,
		"user_id", userID,
		"error", fmt.Errorf("%w: %w", ErrLookupFailed, err))
}

func (l *Lookup) onboarding(ctx context.Context, userID string) (gjson.Result, error) {
	if !l.supabase.Configured() {
		return gjson.Result{}, client.ErrNotConfigured
	}
	res, err := l.supabase.Get(ctx, "/rest/v1/user_onboarding", url.Values{
		"user_id": {"eq." + userID},
		"select":  {"*"},
	})
	if err != nil {
		return gjson.Result{}, err
	}
	if !res.IsArray() || len(res.Array()) == 0 {
		return gjson.Result{}, fmt.Errorf("user %s not found", userID)
	}
	return res.Array()[0], nil
}

func (l *Lookup) company(ctx context.Context, companyID string) (gjson.Result, error) {
	res, err := l.supabase.Get(ctx, "/rest/v1/companies", url.Values{
		"id":     {"eq." + companyID},
		"select": {"*"},
	})
	if err != nil {
		return gjson.Result{}, err
	}
	if !res.IsArray() || len(res.Array()) == 0 {
		return gjson.Result{}, fmt.Errorf("company %s not found", companyID)
	}
	return res.Array()[0], nil
}

func field(r gjson.Result, name string) string {
	v := strings.TrimSpace(r.Get(name).String())
	if v == "" {
		return notInformed
	}
	return v
}

func formatProfile(user gjson.Result) string {
	name := strings.TrimSpace(user.Get("first_name").String() + " " + user.Get("last_name").String())
	if name == "" {
		name = notInformed
	}
	completed := "Não"
	if user.Get("is_completed").Bool() {
		completed = "Sim"
	}
	return fmt.Sprintf("Nome: %s\nEmail: %s\nWhatsApp: %s\nCargo: %s\nOnboarding completo: %s\nCadastrado em: %s",
		name,
		field(user, "email"),
		field(user, "whatsapp_phone"),
		field(user, "position"),
		completed,
		field(user, "created_at"),
	)
}

func formatCompanyFromOnboarding(user gjson.Result) string {
	return fmt.Sprintf("Empresa: %s\nSetor: %s\nTamanho: %s",
		field(user, "company_name"),
		field(user, "industry"),
		field(user, "company_size"),
	)
}

func formatCompany(company gjson.Result) string {
	return fmt.Sprintf("Domínio: %s\nPlano: %s\nCriada em: %s",
		field(company, "domain"),
		field(company, "subscriptionPlan"),
		field(company, "created_at"),
	)
}

// FormatSummaryLine renders a summary on a single line.
func FormatSummaryLine(s Summary) string {
	return fmt.Sprintf("Entradas: %s | Saídas: %s | Saldo: %s | %d transações entre %s e %s",
		FormatBRL(s.Income),
		FormatBRL(s.Expense),
		FormatBRL(s.Balance),
		s.Count,
		s.Start.Format("02/01/2006"),
		s.End.Format("02/01/2006"),
	)
}
