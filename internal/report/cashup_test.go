package report

import (
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

// Wednesday 18 March 2026; the week starts Sunday the 15th.
var testNow = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

func completedSale(date time.Time, method string, total int64) domain.Sale {
	return domain.Sale{
		Type:          domain.SaleTypeSale,
		Status:        domain.SaleStatusCompleted,
		PaymentMethod: method,
		TotalCents:    total,
		Date:          date,
		OperatorID:    "op-1",
		OperatorName:  "Op One",
	}
}

func statsFor(t *testing.T, summary domain.CashUpSummary, operatorID, period string) domain.CashUpStats {
	t.Helper()
	for _, op := range summary.Operators {
		if op.OperatorID == operatorID {
			return op.Periods[period]
		}
	}
	t.Fatalf("operator %s not in summary", operatorID)
	return domain.CashUpStats{}
}

func TestSummarizeBucketsSalesIntoPeriods(t *testing.T) {
	sales := []domain.Sale{
		completedSale(testNow.Add(-time.Hour), domain.PaymentMethodCash, 10000),
		completedSale(time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), domain.PaymentMethodCard, 5000),
		completedSale(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), domain.PaymentMethodCash, 2000),
	}

	summary := Summarize(sales, nil, testNow, Options{})

	today := statsFor(t, summary, "op-1", domain.PeriodToday)
	if today.CashCents != 10000 || today.CardCents != 0 {
		t.Fatalf("today: expected cash 10000 card 0, got %+v", today)
	}

	week := statsFor(t, summary, "op-1", domain.PeriodThisWeek)
	if week.CashCents != 10000 || week.CardCents != 5000 {
		t.Fatalf("week: expected cash 10000 card 5000, got %+v", week)
	}

	month := statsFor(t, summary, "op-1", domain.PeriodThisMonth)
	if month.CashCents != 12000 || month.CardCents != 5000 || month.NetCents != 17000 {
		t.Fatalf("month: expected cash 12000 card 5000 net 17000, got %+v", month)
	}
}

func TestSummarizeVoidsStayOutOfNet(t *testing.T) {
	voided := completedSale(testNow, domain.PaymentMethodCash, 8000)
	voided.Status = domain.SaleStatusVoided

	summary := Summarize([]domain.Sale{voided}, nil, testNow, Options{})
	today := statsFor(t, summary, "op-1", domain.PeriodToday)
	if today.VoidsCents != 8000 {
		t.Fatalf("expected voids 8000, got %d", today.VoidsCents)
	}
	if today.NetCents != 0 || today.CashCents != 0 {
		t.Fatalf("expected voided sale excluded from cash and net, got %+v", today)
	}
}

func TestSummarizeReturnsReduceNetWithProportionalTax(t *testing.T) {
	sale := domain.Sale{
		Type:          domain.SaleTypeSale,
		Status:        domain.SaleStatusPartiallyReturned,
		PaymentMethod: domain.PaymentMethodCash,
		SubtotalCents: 8000,
		TaxCents:      1200,
		TotalCents:    9200,
		Date:          testNow,
		OperatorID:    "op-1",
		OperatorName:  "Op One",
		Items: []domain.SaleItem{
			{ProductID: "prod-1", UnitPriceCents: 4000, Quantity: 2, ReturnedQuantity: 1},
		},
	}

	summary := Summarize([]domain.Sale{sale}, nil, testNow, Options{})
	today := statsFor(t, summary, "op-1", domain.PeriodToday)

	if today.CashCents != 9200 {
		t.Fatalf("expected cash 9200, got %d", today.CashCents)
	}
	// Returned 4000 of value plus its half of the 1200 tax.
	if today.ReturnsCents != 4600 {
		t.Fatalf("expected returns 4600, got %d", today.ReturnsCents)
	}
	if today.NetCents != 4600 {
		t.Fatalf("expected net 4600, got %d", today.NetCents)
	}
}

func TestSummarizeWithdrawalsNeedOptIn(t *testing.T) {
	withdrawal := domain.Sale{
		Type:          domain.SaleTypeWithdrawal,
		Status:        domain.SaleStatusWithdrawal,
		PaymentMethod: domain.PaymentMethodCash,
		TotalCents:    -5000,
		Date:          testNow,
		OperatorID:    "op-1",
		OperatorName:  "Op One",
	}

	summary := Summarize([]domain.Sale{withdrawal}, nil, testNow, Options{})
	today := statsFor(t, summary, "op-1", domain.PeriodToday)
	if today.CashCents != 0 || today.NetCents != 0 {
		t.Fatalf("expected withdrawal ignored by default, got %+v", today)
	}

	summary = Summarize([]domain.Sale{withdrawal}, nil, testNow, Options{IncludeWithdrawals: true})
	today = statsFor(t, summary, "op-1", domain.PeriodToday)
	if today.CashCents != -5000 || today.NetCents != -5000 {
		t.Fatalf("expected withdrawal folded into cash, got %+v", today)
	}
}

func TestSummarizeTransferCountsAsElectronicTender(t *testing.T) {
	sale := completedSale(testNow, domain.PaymentMethodTransfer, 3000)

	summary := Summarize([]domain.Sale{sale}, nil, testNow, Options{})
	today := statsFor(t, summary, "op-1", domain.PeriodToday)
	if today.CardCents != 3000 || today.CashCents != 0 {
		t.Fatalf("expected transfer in card bucket, got %+v", today)
	}
}

func TestSummarizeRosterAndGrandTotal(t *testing.T) {
	operators := []domain.Operator{
		{ID: "op-2", Name: "Beth"},
		{ID: "op-1", Name: "Adam"},
	}
	sales := []domain.Sale{
		{Type: domain.SaleTypeSale, Status: domain.SaleStatusCompleted, PaymentMethod: domain.PaymentMethodCash,
			TotalCents: 4000, Date: testNow, OperatorID: "op-1", OperatorName: "Adam"},
		{Type: domain.SaleTypeSale, Status: domain.SaleStatusCompleted, PaymentMethod: domain.PaymentMethodCash,
			TotalCents: 6000, Date: testNow, OperatorID: "op-2", OperatorName: "Beth"},
	}

	summary := Summarize(sales, operators, testNow, Options{})

	if len(summary.Operators) != 2 {
		t.Fatalf("expected 2 operators, got %d", len(summary.Operators))
	}
	if summary.Operators[0].OperatorName != "Adam" || summary.Operators[1].OperatorName != "Beth" {
		t.Fatalf("expected operators sorted by name, got %s then %s",
			summary.Operators[0].OperatorName, summary.Operators[1].OperatorName)
	}

	grandToday := summary.GrandTotal[domain.PeriodToday]
	if grandToday.CashCents != 10000 || grandToday.NetCents != 10000 {
		t.Fatalf("expected grand total cash 10000, got %+v", grandToday)
	}
}

func TestSummarizeRosterOperatorWithNoSalesGetsZeroRows(t *testing.T) {
	operators := []domain.Operator{{ID: "op-idle", Name: "Idle"}}

	summary := Summarize(nil, operators, testNow, Options{})
	today := statsFor(t, summary, "op-idle", domain.PeriodToday)
	if today != (domain.CashUpStats{}) {
		t.Fatalf("expected zero stats for idle operator, got %+v", today)
	}
}

func TestStartOfWeekIsSunday(t *testing.T) {
	sunday := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := startOfWeek(testNow); !got.Equal(sunday) {
		t.Fatalf("expected week start %v, got %v", sunday, got)
	}
	// A Sunday is its own week start.
	if got := startOfWeek(sunday.Add(5 * time.Hour)); !got.Equal(sunday) {
		t.Fatalf("expected sunday to start its own week, got %v", got)
	}
}
