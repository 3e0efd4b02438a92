package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/database/dbtest"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/models"
)

func setup(t *testing.T) (*LedgerService, *gorm.DB) {
	t.Helper()
	runner := dbtest.Runner(t)
	return NewLedgerService(runner, logging.NewDiscardLogger()), runner.DB()
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestRecordEarnedAndBalance(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	agent := dbtest.SeedProfile(t, db, models.ProfileTypeSalesAgent)
	sale := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, agent)

	w := dec(2640)
	m, err := svc.RecordEarned(ctx, sale.ID, manager.ID, dec(80_000), "KRW", &w)
	require.NoError(t, err)
	a, err := svc.RecordEarned(ctx, sale.ID, agent.ID, dec(50_000), "KRW", nil)
	require.NoError(t, err)

	assert.Less(t, m.ID, a.ID)
	assert.Equal(t, models.EntryTypeEarned, m.EntryType)
	assert.True(t, m.Withholding.Valid)
	assert.False(t, a.Withholding.Valid)
	assert.False(t, m.Settled)

	bal, err := svc.BalanceFor(ctx, sale.ID, manager.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec(80_000)), bal.String())

	bal, err = svc.BalanceFor(ctx, sale.ID, agent.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec(50_000)), bal.String())

	balances, err := svc.Recompute(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, balances, 2)
	assert.True(t, balances[manager.ID].Equal(dec(80_000)))
}

func TestRecordEarnedRejections(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	confirmed := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, nil)
	cancelled := dbtest.SeedSale(t, db, models.SaleStatusCancelled, 1_000_000, manager, nil)
	refunded := dbtest.SeedSale(t, db, models.SaleStatusRefunded, 1_000_000, manager, nil)
	negative := dec(-10)

	tests := []struct {
		name        string
		saleID      uuid.UUID
		profileID   uuid.UUID
		amount      decimal.Decimal
		currency    string
		withholding *decimal.Decimal
		check       func(t *testing.T, err error)
	}{
		{
			name: "zero amount", saleID: confirmed.ID, profileID: manager.ID, amount: decimal.Zero, currency: "KRW",
			check: func(t *testing.T, err error) {
				var target *apperrors.InvalidEntryError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "cancelled sale", saleID: cancelled.ID, profileID: manager.ID, amount: dec(100), currency: "KRW",
			check: func(t *testing.T, err error) {
				var target *apperrors.InvalidEntryError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "refunded sale", saleID: refunded.ID, profileID: manager.ID, amount: dec(100), currency: "KRW",
			check: func(t *testing.T, err error) {
				var target *apperrors.InvalidStateError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "currency mismatch", saleID: confirmed.ID, profileID: manager.ID, amount: dec(100), currency: "USD",
			check: func(t *testing.T, err error) {
				var target *apperrors.InvalidEntryError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "withholding sign mismatch", saleID: confirmed.ID, profileID: manager.ID, amount: dec(100), currency: "KRW", withholding: &negative,
			check: func(t *testing.T, err error) {
				var target *apperrors.InvalidEntryError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "unknown sale", saleID: uuid.New(), profileID: manager.ID, amount: dec(100), currency: "KRW",
			check: func(t *testing.T, err error) {
				var target *apperrors.NotFoundError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "sale", target.Entity)
			},
		},
		{
			name: "unknown profile", saleID: confirmed.ID, profileID: uuid.New(), amount: dec(100), currency: "KRW",
			check: func(t *testing.T, err error) {
				var target *apperrors.NotFoundError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "profile", target.Entity)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := svc.RecordEarned(ctx, tt.saleID, tt.profileID, tt.amount, tt.currency, tt.withholding)
			assert.Nil(t, entry)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEntriesAreImmutable(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	sale := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, nil)

	entry, err := svc.RecordEarned(ctx, sale.ID, manager.ID, dec(80_000), "KRW", nil)
	require.NoError(t, err)

	err = db.Model(entry).Update("amount", dec(1)).Error
	assert.True(t, errors.Is(err, models.ErrImmutableEntry))

	err = db.Delete(entry).Error
	assert.True(t, errors.Is(err, models.ErrDurableEntry))

	stored, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(dec(80_000)))
}

func seedEntries(t *testing.T, svc *LedgerService, db *gorm.DB, n int) (*models.Sale, []uint64) {
	t.Helper()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	sale := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, nil)
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		e, err := svc.RecordEarned(context.Background(), sale.ID, manager.ID, dec(int64(1000*(i+1))), "KRW", nil)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	return sale, ids
}

func TestMarkSettledTwice(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	sale, ids := seedEntries(t, svc, db, 3)

	require.NoError(t, svc.MarkSettled(ctx, ids, uuid.New()))

	err := svc.MarkSettled(ctx, ids, uuid.New())
	var settled *apperrors.AlreadySettledError
	require.ErrorAs(t, err, &settled)
	assert.ElementsMatch(t, ids, settled.EntryIDs)

	unsettled, err := svc.FindUnsettledBySale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}

func TestMarkSettledIsAllOrNothing(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	sale, ids := seedEntries(t, svc, db, 4)

	first := uuid.New()
	require.NoError(t, svc.MarkSettled(ctx, ids[:1], first))

	err := svc.MarkSettled(ctx, ids, uuid.New())
	var settled *apperrors.AlreadySettledError
	require.ErrorAs(t, err, &settled)
	assert.Equal(t, []uint64{ids[0]}, settled.EntryIDs)

	unsettled, err := svc.FindUnsettledBySale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, unsettled, 3)
	for _, e := range unsettled {
		assert.Nil(t, e.SettlementBatchID)
	}

	entry, err := svc.GetEntry(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, entry.SettlementBatchID)
	assert.Equal(t, first, *entry.SettlementBatchID)
}

func TestMarkSettledRejectsUnknownAndEmpty(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	_, ids := seedEntries(t, svc, db, 1)

	err := svc.MarkSettled(ctx, nil, uuid.New())
	var invalid *apperrors.InvalidEntryError
	assert.ErrorAs(t, err, &invalid)

	err = svc.MarkSettled(ctx, append(ids, 9999), uuid.New())
	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "9999", notFound.ID)
}

func TestConcurrentMarkSettled(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	_, ids := seedEntries(t, svc, db, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	batches := []uuid.UUID{uuid.New(), uuid.New()}
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.MarkSettled(ctx, ids, batches[i])
		}(i)
	}
	wg.Wait()

	var winner uuid.UUID
	successes := 0
	for i, err := range errs {
		if err == nil {
			successes++
			winner = batches[i]
			continue
		}
		var settled *apperrors.AlreadySettledError
		require.ErrorAs(t, err, &settled)
		assert.ElementsMatch(t, ids, settled.EntryIDs)
	}
	require.Equal(t, 1, successes)

	var entries []models.LedgerEntry
	require.NoError(t, db.Where("id IN ?", ids).Find(&entries).Error)
	for _, e := range entries {
		assert.True(t, e.Settled)
		require.NotNil(t, e.SettlementBatchID)
		assert.Equal(t, winner, *e.SettlementBatchID)
	}
}

func TestBalanceForProfileAcrossSales(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	s1 := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, nil)
	s2 := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 500_000, manager, nil)

	_, err := svc.RecordEarned(ctx, s1.ID, manager.ID, dec(80_000), "KRW", nil)
	require.NoError(t, err)
	_, err = svc.RecordEarned(ctx, s2.ID, manager.ID, dec(40_000), "KRW", nil)
	require.NoError(t, err)

	total, err := svc.BalanceForProfile(ctx, manager.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec(120_000)))

	unsettled, err := svc.FindUnsettledByProfile(ctx, manager.ID)
	require.NoError(t, err)
	assert.Len(t, unsettled, 2)
}

func TestReadsRejectUnknownSaleOrProfile(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	manager := dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager)
	sale := dbtest.SeedSale(t, db, models.SaleStatusConfirmed, 1_000_000, manager, nil)

	var notFound *apperrors.NotFoundError

	_, err := svc.BalanceFor(ctx, uuid.New(), manager.ID)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "sale", notFound.Entity)

	_, err = svc.BalanceFor(ctx, sale.ID, uuid.New())
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "profile", notFound.Entity)

	_, err = svc.BalanceForProfile(ctx, uuid.New())
	require.ErrorAs(t, err, &notFound)

	_, err = svc.Entries(ctx, uuid.New())
	require.ErrorAs(t, err, &notFound)

	_, err = svc.Recompute(ctx, uuid.New())
	require.ErrorAs(t, err, &notFound)

	// A known sale and profile with no entries is a zero position
	bal, err := svc.BalanceFor(ctx, sale.ID, manager.ID)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
