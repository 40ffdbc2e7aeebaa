package report

import (
	"slices"
	"time"

	"tillpoint/backend/internal/domain"
)

// Options tunes the cash-up fold. IncludeWithdrawals folds cash drawer
// withdrawals (negative totals) into the cash bucket.
type Options struct {
	IncludeWithdrawals bool
}

type interval struct {
	start time.Time
	end   time.Time
}

func (iv interval) contains(t time.Time) bool {
	return !t.Before(iv.start) && t.Before(iv.end)
}

// Summarize folds a window of sales into per-operator, per-period totals.
// It is pure: callers fetch the sales (normally the current month) and the
// operator roster, and every store backend gets identical math.
//
// Per period: cash/card sum completed and partially-returned sales by
// tender; voids sum voided sale totals and stay out of net; returns sum
// returned line value plus a proportional share of the sale's tax; net is
// the sales total minus returns.
func Summarize(sales []domain.Sale, operators []domain.Operator, now time.Time, opts Options) domain.CashUpSummary {
	now = now.UTC()
	periods := map[string]interval{
		domain.PeriodToday:     {start: startOfDay(now), end: startOfDay(now).AddDate(0, 0, 1)},
		domain.PeriodThisWeek:  {start: startOfWeek(now), end: startOfWeek(now).AddDate(0, 0, 7)},
		domain.PeriodThisMonth: {start: startOfMonth(now), end: startOfMonth(now).AddDate(0, 1, 0)},
	}

	type bucket struct {
		name    string
		periods map[string]*domain.CashUpStats
	}
	buckets := make(map[string]*bucket)
	ensure := func(operatorID, operatorName string) *bucket {
		b, exists := buckets[operatorID]
		if !exists {
			b = &bucket{name: operatorName, periods: map[string]*domain.CashUpStats{
				domain.PeriodToday:     {},
				domain.PeriodThisWeek:  {},
				domain.PeriodThisMonth: {},
			}}
			buckets[operatorID] = b
		}
		return b
	}
	for _, op := range operators {
		ensure(op.ID, op.Name)
	}

	for _, sale := range sales {
		b := ensure(sale.OperatorID, sale.OperatorName)
		for name, iv := range periods {
			if !iv.contains(sale.Date) {
				continue
			}
			applySale(b.periods[name], sale, opts)
		}
	}

	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		na, nb := buckets[a].name, buckets[b].name
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})

	summary := domain.CashUpSummary{
		GeneratedAt: now,
		Operators:   make([]domain.OperatorCashUp, 0, len(ids)),
		GrandTotal: map[string]domain.CashUpStats{
			domain.PeriodToday:     {},
			domain.PeriodThisWeek:  {},
			domain.PeriodThisMonth: {},
		},
	}
	for _, id := range ids {
		b := buckets[id]
		entry := domain.OperatorCashUp{
			OperatorID:   id,
			OperatorName: b.name,
			Periods:      make(map[string]domain.CashUpStats, len(b.periods)),
		}
		for name, stats := range b.periods {
			entry.Periods[name] = *stats
			grand := summary.GrandTotal[name]
			grand.Add(*stats)
			summary.GrandTotal[name] = grand
		}
		summary.Operators = append(summary.Operators, entry)
	}
	return summary
}

func applySale(stats *domain.CashUpStats, sale domain.Sale, opts Options) {
	if sale.Type == domain.SaleTypeWithdrawal {
		if opts.IncludeWithdrawals && sale.PaymentMethod == domain.PaymentMethodCash {
			stats.CashCents += sale.TotalCents
			stats.NetCents += sale.TotalCents
		}
		return
	}

	if sale.Status == domain.SaleStatusVoided {
		stats.VoidsCents += sale.TotalCents
		return
	}

	if sale.Status == domain.SaleStatusCompleted || sale.Status == domain.SaleStatusPartiallyReturned {
		switch sale.PaymentMethod {
		case domain.PaymentMethodCash:
			stats.CashCents += sale.TotalCents
		default:
			// Card and transfer are both electronic tender.
			stats.CardCents += sale.TotalCents
		}
		stats.NetCents += sale.TotalCents
	}

	if sale.Status == domain.SaleStatusPartiallyReturned || sale.Status == domain.SaleStatusReturned {
		var returnedValue int64
		for _, item := range sale.Items {
			returnedValue += int64(item.ReturnedQuantity) * item.UnitPriceCents
		}
		total := returnedValue + domain.ProportionalTaxCents(sale.TaxCents, sale.SubtotalCents, returnedValue)
		stats.ReturnsCents += total
		stats.NetCents -= total
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Weeks start on Sunday.
func startOfWeek(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, -int(t.Weekday()))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
