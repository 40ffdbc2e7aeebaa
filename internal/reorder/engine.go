package reorder

import (
	"sort"
	"time"

	"tillpoint/backend/internal/domain"
)

// Build ranks low-stock products by recent demand. Callers pass the sales
// window to consider (normally the trailing 30 days); only completed and
// partially-returned merchandise sales count, and returned units do not.
//
// priority = salesVolume / (stock + 1), so an out-of-stock fast mover
// sorts above a half-stocked slow one. Products above their low-stock
// threshold never appear, whatever their velocity.
func Build(products []domain.Product, sales []domain.Sale, now time.Time) domain.ReorderList {
	volume := make(map[string]int)
	for _, sale := range sales {
		if sale.Type != domain.SaleTypeSale {
			continue
		}
		if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPartiallyReturned {
			continue
		}
		for _, item := range sale.Items {
			if sold := item.RemainingQuantity(); sold > 0 {
				volume[item.ProductID] += sold
			}
		}
	}

	items := make([]domain.ReorderItem, 0, len(products))
	for _, product := range products {
		if !product.Active || product.Stock > product.LowStockThreshold {
			continue
		}
		sold := volume[product.ID]
		items = append(items, domain.ReorderItem{
			Product:       product,
			SalesVolume:   sold,
			PriorityScore: float64(sold) / float64(product.Stock+1),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PriorityScore > items[j].PriorityScore
	})

	return domain.ReorderList{GeneratedAt: now.UTC(), Items: items}
}
