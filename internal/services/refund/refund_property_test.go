package refund

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/cruisemall/affiliate/internal/database/dbtest"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/services/ledger"
)

func TestReversalSymmetryProperty(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	profiles := []*models.Profile{f.manager, f.agent}

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	properties := gopter.NewProperties(params)

	properties.Property("entries of a refunded sale sum to zero", prop.ForAll(
		func(amounts []int64, cancelFirst bool) bool {
			sale := dbtest.SeedSale(t, f.db, models.SaleStatusConfirmed, 1_000_000, f.manager, f.agent)
			for i, a := range amounts {
				if a == 0 {
					continue
				}
				amount := decimal.NewFromInt(a).Shift(-2)
				w := amount.Mul(decimal.RequireFromString("0.033")).Round(2)
				var withholding *decimal.Decimal
				if !w.IsZero() {
					withholding = &w
				}
				p := profiles[i%len(profiles)]
				if _, err := f.ledger.RecordEarned(ctx, sale.ID, p.ID, amount, "KRW", withholding); err != nil {
					return false
				}
			}

			if cancelFirst {
				if _, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "first"); err != nil {
					return false
				}
				if _, err := f.svc.CancelRefund(ctx, admin, sale.ID); err != nil {
					return false
				}
			}
			if _, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "final"); err != nil {
				return false
			}

			entries, err := f.ledger.Entries(ctx, sale.ID)
			if err != nil || !ledger.Fold(entries).IsZero() {
				return false
			}
			withheld := decimal.Zero
			for _, e := range entries {
				if e.Withholding.Valid {
					withheld = withheld.Add(e.Withholding.Decimal)
				}
			}
			return withheld.IsZero()
		},
		gen.SliceOf(gen.Int64Range(-10_000_000, 10_000_000)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
