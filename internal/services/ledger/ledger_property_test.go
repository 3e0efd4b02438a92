package ledger

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cruisemall/affiliate/internal/database/dbtest"
	"github.com/cruisemall/affiliate/internal/models"
)

func TestBalanceReplayProperty(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	agent := dbtest.SeedProfile(t, db, models.ProfileTypeSalesAgent)
	profiles := []*models.Profile{manager, agent}

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	properties := gopter.NewProperties(params)

	properties.Property("fold equals replay of the full dump", prop.ForAll(
		func(amounts []int64) bool {
			sale := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, agent)
			for i, a := range amounts {
				if a == 0 {
					continue
				}
				p := profiles[i%len(profiles)]
				if _, err := svc.RecordEarned(ctx, sale.ID, p.ID, decimal.NewFromInt(a), "KRW", nil); err != nil {
					return false
				}
			}

			replayed, err := svc.Recompute(ctx, sale.ID)
			if err != nil {
				return false
			}
			for _, p := range profiles {
				folded, err := svc.BalanceFor(ctx, sale.ID, p.ID)
				if err != nil || !folded.Equal(replayed[p.ID]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-100_000, 100_000)),
	))

	properties.TestingRun(t)
}

func TestFoldIsOrderIndependent(t *testing.T) {
	entries := []models.LedgerEntry{
		{Amount: decimal.NewFromInt(80_000)},
		{Amount: decimal.NewFromInt(20_000)},
		{Amount: decimal.NewFromInt(-100_000)},
		{Amount: decimal.RequireFromString("0.01")},
	}
	reversed := make([]models.LedgerEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	require.True(t, Fold(entries).Equal(Fold(reversed)))
	require.True(t, Fold(entries).Equal(decimal.RequireFromString("0.01")))
	require.True(t, Fold(nil).IsZero())
}
