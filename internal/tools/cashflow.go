package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/falachefe/consultant/internal/business"
)

const periodDescription = "Período: 'current_month', 'YYYY-MM' ou vazio para o mês anterior até hoje"

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string, enum ...string) map[string]any {
	p := map[string]any{"type": "string", "description": description}
	if len(enum) > 0 {
		p["enum"] = enum
	}
	return p
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("argumentos inválidos: %w", err)
	}
	return nil
}

func financeReady(deps *Dependencies) bool {
	return deps != nil && deps.Finance != nil
}

// =============================================================================
// get_cashflow_balance
// =============================================================================

type periodInput struct {
	Period string `json:"period"`
}

// CashflowBalance reports income, expenses and balance for a period.
type CashflowBalance struct{ deps *Dependencies }

// NewCashflowBalance creates the get_cashflow_balance tool.
func NewCashflowBalance(deps *Dependencies) *CashflowBalance { return &CashflowBalance{deps: deps} }

func (t *CashflowBalance) Name() string { return "get_cashflow_balance" }

func (t *CashflowBalance) Description() string {
	return "Consulta o saldo do fluxo de caixa: entradas, saídas e saldo do período. " +
		"Use quando o usuário perguntar sobre saldo, dinheiro disponível ou situação financeira atual."
}

func (t *CashflowBalance) Parameters() map[string]any {
	return objectSchema(map[string]any{"period": stringProp(periodDescription)})
}

func (t *CashflowBalance) Call(ctx context.Context, scope Scope, args json.RawMessage) string {
	var in periodInput
	if err := decodeArgs(args, &in); err != nil {
		return ErrorResult(err.Error(), "Envie um objeto JSON com o campo period")
	}
	if !financeReady(t.deps) {
		return ErrorResult("API financeira não configurada", "")
	}

	s, err := t.deps.Finance.Summary(ctx, scope.UserID, in.Period)
	if err != nil {
		t.deps.logger().Error("cashflow balance failed", "user_id", scope.UserID, "error", err)
		return ErrorResult("não foi possível consultar o saldo: "+err.Error(), "Verifique o período informado")
	}

	return TextResult(fmt.Sprintf(`Saldo do Fluxo de Caixa - %s
💰 Entradas: %s
💸 Saídas: %s
📊 Saldo: %s
📈 Total de transações: %d
🗓️ Período: %s a %s`,
		periodLabel(in.Period),
		business.FormatBRL(s.Income),
		business.FormatBRL(s.Expense),
		business.FormatBRL(s.Balance),
		s.Count,
		s.Start.Format("02/01/2006"),
		s.End.Format("02/01/2006"),
	))
}

func periodLabel(period string) string {
	if strings.TrimSpace(period) == "" {
		return business.PeriodLastMonth
	}
	return period
}

// =============================================================================
// get_cashflow_categories
// =============================================================================

type categoriesInput struct {
	Period          string `json:"period"`
	TransactionType string `json:"transaction_type"`
}

// CategoryTotal is the amount spent or received in one category.
type CategoryTotal struct {
	Name    string
	Amount  float64
	Percent float64
}

// GroupByCategory totals transactions of kind per category, largest first.
func GroupByCategory(txs []business.Transaction, kind string) ([]CategoryTotal, float64) {
	totals := map[string]float64{}
	var sum float64
	for _, tx := range txs {
		if tx.Kind != kind {
			continue
		}
		name := tx.Category
		if name == "" {
			name = "sem categoria"
		}
		totals[name] += tx.Amount
		sum += tx.Amount
	}

	out := make([]CategoryTotal, 0, len(totals))
	for name, amount := range totals {
		pct := 0.0
		if sum > 0 {
			pct = amount / sum * 100
		}
		out = append(out, CategoryTotal{Name: name, Amount: amount, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount == out[j].Amount {
			return out[i].Name < out[j].Name
		}
		return out[i].Amount > out[j].Amount
	})
	return out, sum
}

// CashflowCategories ranks categories of expenses or income.
type CashflowCategories struct{ deps *Dependencies }

// NewCashflowCategories creates the get_cashflow_categories tool.
func NewCashflowCategories(deps *Dependencies) *CashflowCategories {
	return &CashflowCategories{deps: deps}
}

func (t *CashflowCategories) Name() string { return "get_cashflow_categories" }

func (t *CashflowCategories) Description() string {
	return "Lista as principais categorias de custos ou receitas do período, ordenadas por valor. " +
		"Use quando o usuário perguntar onde está gastando mais ou pedir análise por categoria."
}

func (t *CashflowCategories) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"period":           stringProp(periodDescription),
		"transaction_type": stringProp("Tipo de transação, padrão 'saida'", business.KindIncome, business.KindExpense),
	}, "period")
}

func (t *CashflowCategories) Call(ctx context.Context, scope Scope, args json.RawMessage) string {
	var in categoriesInput
	if err := decodeArgs(args, &in); err != nil {
		return ErrorResult(err.Error(), "")
	}
	if in.TransactionType == "" {
		in.TransactionType = business.KindExpense
	}
	if in.TransactionType != business.KindIncome && in.TransactionType != business.KindExpense {
		return ErrorResult("transaction_type inválido", "Use 'entrada' ou 'saida'")
	}
	if !financeReady(t.deps) {
		return ErrorResult("API financeira não configurada", "")
	}

	txs, err := t.deps.Finance.Transactions(ctx, scope.UserID, in.Period)
	if err != nil {
		t.deps.logger().Error("cashflow categories failed", "user_id", scope.UserID, "error", err)
		return ErrorResult("não foi possível consultar as categorias: "+err.Error(), "")
	}

	label := "Custos"
	if in.TransactionType == business.KindIncome {
		label = "Receitas"
	}
	cats, total := GroupByCategory(txs, in.TransactionType)
	if len(cats) == 0 {
		return TextResult(fmt.Sprintf("Nenhuma transação de %s encontrada em %s.", strings.ToLower(label), periodLabel(in.Period)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Principais Categorias de %s - %s\n\n", label, periodLabel(in.Period))
	for i, c := range cats {
		fmt.Fprintf(&b, "%d. %s\n   %s (%.1f%%)\n   %s\n", i+1, c.Name, business.FormatBRL(c.Amount), c.Percent, strings.Repeat("█", int(c.Percent/5)))
	}
	fmt.Fprintf(&b, "\nTotal: %s", business.FormatBRL(total))
	return TextResult(b.String())
}

// =============================================================================
// add_cashflow_transaction
// =============================================================================

type addTransactionInput struct {
	TransactionType string  `json:"transaction_type"`
	Amount          float64 `json:"amount"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	Date            string  `json:"date"`
}

// AddCashflowTransaction records an income or expense entry.
type AddCashflowTransaction struct{ deps *Dependencies }

// NewAddCashflowTransaction creates the add_cashflow_transaction tool.
func NewAddCashflowTransaction(deps *Dependencies) *AddCashflowTransaction {
	return &AddCashflowTransaction{deps: deps}
}

func (t *AddCashflowTransaction) Name() string { return "add_cashflow_transaction" }

func (t *AddCashflowTransaction) Description() string {
	return "Registra uma transação (entrada ou saída) no fluxo de caixa. " +
		"Use quando o usuário quiser registrar receita, despesa, pagamento ou recebimento."
}

func (t *AddCashflowTransaction) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"transaction_type": stringProp("Tipo da transação", business.KindIncome, business.KindExpense),
		"amount":           map[string]any{"type": "number", "description": "Valor em reais"},
		"category":         stringProp("Categoria, ex: vendas, aluguel, salarios"),
		"description":      stringProp("Descrição adicional"),
		"date":             stringProp("Data no formato YYYY-MM-DD, padrão hoje"),
	}, "transaction_type", "amount", "category")
}

func (t *AddCashflowTransaction) Call(ctx context.Context, scope Scope, args json.RawMessage) string {
	var in addTransactionInput
	if err := decodeArgs(args, &in); err != nil {
		return ErrorResult(err.Error(), "")
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrorResult("categoria obrigatória", "Pergunte ao usuário a categoria da transação")
	}
	if !financeReady(t.deps) {
		return ErrorResult("API financeira não configurada", "")
	}

	id, err := t.deps.Finance.AddTransaction(ctx, business.NewTransaction{
		UserID:      scope.UserID,
		Kind:        in.TransactionType,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
		Agent:       scope.AgentID,
	})
	if err != nil {
		t.deps.logger().Error("add transaction failed", "user_id", scope.UserID, "error", err)
		return ErrorResult("não foi possível registrar a transação: "+err.Error(), "")
	}

	emoji, label := "💸", "Saída"
	if in.TransactionType == business.KindIncome {
		emoji, label = "💰", "Entrada"
	}
	lines := []string{
		"✅ Transação registrada com sucesso!",
		fmt.Sprintf("%s Tipo: %s", emoji, label),
		fmt.Sprintf("💵 Valor: %s", business.FormatBRL(in.Amount)),
		fmt.Sprintf("📁 Categoria: %s", in.Category),
	}
	if in.Date != "" {
		lines = append(lines, fmt.Sprintf("📅 Data: %s", in.Date))
	}
	if in.Description != "" {
		lines = append(lines, fmt.Sprintf("📝 Descrição: %s", in.Description))
	}
	if id == "" {
		id = "N/A"
	}
	lines = append(lines, fmt.Sprintf("🆔 ID da transação: %s", id))
	t.deps.logger().Info("transaction recorded", "user_id", scope.UserID, "transaction_id", id)
	return TextResult(FormatResults(lines))
}

// =============================================================================
// get_cashflow_summary
// =============================================================================

// CashflowSummary combines totals, top categories and simple alerts.
type CashflowSummary struct{ deps *Dependencies }

// NewCashflowSummary creates the get_cashflow_summary tool.
func NewCashflowSummary(deps *Dependencies) *CashflowSummary { return &CashflowSummary{deps: deps} }

func (t *CashflowSummary) Name() string { return "get_cashflow_summary" }

func (t *CashflowSummary) Description() string {
	return "Gera um resumo completo do fluxo de caixa com saldos, principais categorias e alertas. " +
		"Use quando o usuário pedir relatório, análise completa ou visão geral financeira."
}

func (t *CashflowSummary) Parameters() map[string]any {
	return objectSchema(map[string]any{"period": stringProp(periodDescription)}, "period")
}

func (t *CashflowSummary) Call(ctx context.Context, scope Scope, args json.RawMessage) string {
	var in periodInput
	if err := decodeArgs(args, &in); err != nil {
		return ErrorResult(err.Error(), "")
	}
	if !financeReady(t.deps) {
		return ErrorResult("API financeira não configurada", "")
	}

	s, err := t.deps.Finance.Summary(ctx, scope.UserID, in.Period)
	if err != nil {
		return ErrorResult("não foi possível gerar o resumo: "+err.Error(), "")
	}
	txs, err := t.deps.Finance.Transactions(ctx, scope.UserID, in.Period)
	if err != nil {
		return ErrorResult("não foi possível gerar o resumo: "+err.Error(), "")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 RESUMO DO FLUXO DE CAIXA\nPeríodo: %s (%s a %s)\n\n", periodLabel(in.Period), s.Start.Format("02/01/2006"), s.End.Format("02/01/2006"))
	fmt.Fprintf(&b, "(+) Entradas: %s\n(-) Saídas: %s\nSaldo: %s\nTransações: %d\n", business.FormatBRL(s.Income), business.FormatBRL(s.Expense), business.FormatBRL(s.Balance), s.Count)

	writeTop := func(title, kind string) {
		cats, _ := GroupByCategory(txs, kind)
		if len(cats) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s\n", title)
		for i, c := range cats {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "  • %s: %s\n", c.Name, business.FormatBRL(c.Amount))
		}
	}
	writeTop("📈 PRINCIPAIS ENTRADAS", business.KindIncome)
	writeTop("📉 PRINCIPAIS SAÍDAS", business.KindExpense)

	if alerts := summaryAlerts(s); len(alerts) > 0 {
		b.WriteString("\n🚨 ALERTAS\n")
		for _, a := range alerts {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}
	return TextResult(b.String())
}

func summaryAlerts(s business.Summary) []string {
	var alerts []string
	switch {
	case s.Count == 0:
		alerts = append(alerts, "ℹ️ Nenhuma transação registrada no período")
	case s.Balance < 0:
		alerts = append(alerts, "⚠️ Saldo negativo no período")
	case s.Income > 0 && s.Expense/s.Income >= 0.8:
		alerts = append(alerts, "⚠️ Saídas consomem 80% ou mais das entradas")
	default:
		alerts = append(alerts, "✅ Saldo positivo no período")
	}
	return alerts
}
