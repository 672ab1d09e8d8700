package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DemoProducts is the catalog loaded by the seed command and by the memory
// store in development.
var DemoProducts = []Product{
	{SKU: "PAIN-001", Name: "Pain de campagne", Price: decimal.NewFromInt(500), Stock: 40, Perishable: true, CategoryID: "boulangerie"},
	{SKU: "CROI-002", Name: "Croissant beurre", Price: decimal.NewFromInt(350), Stock: 60, Perishable: true, CategoryID: "boulangerie"},
	{SKU: "LAIT-003", Name: "Lait UHT 1L", Price: decimal.NewFromInt(900), Stock: 24, CategoryID: "epicerie"},
	{SKU: "RIZ-004", Name: "Riz parfumé 5kg", Price: decimal.NewFromInt(6500), Stock: 12, CategoryID: "epicerie"},
	{SKU: "HUIL-005", Name: "Huile de palme 1L", Price: decimal.RequireFromString("1250.50"), Stock: 8, CategoryID: "epicerie"},
	{SKU: "POIS-006", Name: "Poisson salé", Price: decimal.NewFromInt(3000), Stock: 6, Perishable: true, CategoryID: "frais"},
}

// Seed upserts the demo catalog and one morning and one afternoon slot for
// each of the next days, starting at from.
func Seed(ctx context.Context, s Store, from time.Time, days int) ([]Product, []PickupSlot, error) {
	products := make([]Product, 0, len(DemoProducts))
	for _, p := range DemoProducts {
		saved, err := s.UpsertProduct(ctx, p)
		if err != nil {
			return nil, nil, fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
		products = append(products, saved)
	}

	var slots []PickupSlot
	y, m, d := from.Date()
	for i := 0; i < days; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, time.UTC)
		for _, w := range [][2]string{{"09:00", "12:00"}, {"14:00", "18:00"}} {
			slot, err := s.UpsertPickupSlot(ctx, PickupSlot{
				ID:        fmt.Sprintf("slot-%s-%s", day.Format("20060102"), w[0][:2]),
				Date:      day,
				TimeFrom:  w[0],
				TimeTo:    w[1],
				Capacity:  20,
				Remaining: 20,
				Active:    true,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("seed slot %s: %w", day.Format(time.DateOnly), err)
			}
			slots = append(slots, slot)
		}
	}
	return products, slots, nil
}
