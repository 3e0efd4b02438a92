package refund

import (
	"context"
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
	"github.com/cruisemall/affiliate/internal/notify"
	"github.com/cruisemall/affiliate/internal/security"
	"github.com/cruisemall/affiliate/internal/security/audit"
	"github.com/cruisemall/affiliate/internal/services/adjustment"
	"github.com/cruisemall/affiliate/internal/services/ledger"
)

var admin = security.Actor{ID: uuid.New(), Role: security.RoleAdmin}

type fixture struct {
	svc         *RefundService
	ledger      *ledger.LedgerService
	adjustments *adjustment.AdjustmentService
	audit       *audit.Logger
	db          *gorm.DB
	manager     *models.Profile
	agent       *models.Profile
}

func setup(t *testing.T) *fixture {
	t.Helper()
	runner := dbtest.Runner(t)
	logger := logging.NewDiscardLogger()
	db := runner.DB()
	policy := security.NewRolePolicy()
	auditLogger := audit.NewLogger(db)
	ledgerService := ledger.NewLedgerService(runner, logger)

	return &fixture{
		svc:         NewRefundService(runner, ledgerService, policy, auditLogger, notify.Nop{}, logger),
		ledger:      ledgerService,
		adjustments: adjustment.NewAdjustmentService(runner, ledgerService, policy, auditLogger, notify.Nop{}, logger),
		audit:       auditLogger,
		db:          db,
		manager:     dbtest.SeedProfile(t, db, models.ProfileTypeBranchManager),
		agent:       dbtest.SeedProfile(t, db, models.ProfileTypeSalesAgent),
	}
}

// scenarioSale builds S1: manager +80,000, agent +50,000, approved manager
// adjustment +20,000
func (f *fixture) scenarioSale(t *testing.T) *models.Sale {
	t.Helper()
	ctx := context.Background()
	sale := dbtest.SeedSale(t, f.db, models.SaleStatusConfirmed, 1_000_000, f.manager, f.agent)

	w := decimal.NewFromInt(2_640)
	earned, err := f.ledger.RecordEarned(ctx, sale.ID, f.manager.ID, decimal.NewFromInt(80_000), "KRW", &w)
	require.NoError(t, err)
	_, err = f.ledger.RecordEarned(ctx, sale.ID, f.agent.ID, decimal.NewFromInt(50_000), "KRW", nil)
	require.NoError(t, err)

	req, err := f.adjustments.RequestAdjustment(ctx, admin, earned.ID, decimal.NewFromInt(20_000), "upgrade")
	require.NoError(t, err)
	_, _, err = f.adjustments.Approve(ctx, admin, req.ID, "")
	require.NoError(t, err)
	return sale
}

func (f *fixture) balance(t *testing.T, saleID, profileID uuid.UUID) decimal.Decimal {
	t.Helper()
	bal, err := f.ledger.BalanceFor(context.Background(), saleID, profileID)
	require.NoError(t, err)
	return bal
}

func TestProcessRefundMirrorsEntries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sale := f.scenarioSale(t)

	result, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "customer cancelled voyage")
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusRefunded, result.Sale.Status)
	assert.NotNil(t, result.Sale.RefundedAt)
	require.Len(t, result.Reversals, 3)

	amounts := []int64{-80_000, -50_000, -20_000}
	for i, r := range result.Reversals {
		assert.Equal(t, models.EntryTypeRefund, r.EntryType)
		assert.True(t, r.Amount.Equal(decimal.NewFromInt(amounts[i])), r.Amount.String())
		require.NotNil(t, r.ReversesEntryID)
		assert.Equal(t, "customer cancelled voyage", r.Reason)
		assert.Equal(t, admin.ID, *r.AuthorizedBy)
	}
	assert.True(t, result.Reversals[0].Withholding.Decimal.Equal(decimal.NewFromInt(-2_640)))

	assert.True(t, f.balance(t, sale.ID, f.manager.ID).IsZero())
	assert.True(t, f.balance(t, sale.ID, f.agent.ID).IsZero())

	entries, err := f.ledger.Entries(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, ledger.Fold(entries).IsZero())

	logs, err := f.audit.ForTarget("sale", sale.ID.String(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.EventTypeRefundProcessed, logs[0].EventType)
}

func TestProcessRefundRejectsTerminalSales(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, status := range []models.SaleStatus{models.SaleStatusRefunded, models.SaleStatusCancelled} {
		sale := dbtest.SeedSale(t, f.db, status, 1_000, f.manager, nil)
		_, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "again")
		var state *apperrors.InvalidStateError
		require.ErrorAs(t, err, &state)
		assert.Equal(t, string(status), state.Status)
	}

	_, err := f.svc.ProcessRefund(ctx, admin, uuid.New(), "missing")
	var nf *apperrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestProcessRefundRequiresAdmin(t *testing.T) {
	f := setup(t)
	sale := dbtest.SeedSale(t, f.db, models.SaleStatusConfirmed, 1_000, f.manager, nil)

	affiliate := security.Actor{ID: uuid.New(), Role: security.RoleAffiliate}
	_, err := f.svc.ProcessRefund(context.Background(), affiliate, sale.ID, "")
	var authErr *apperrors.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	_, err = f.svc.CancelRefund(context.Background(), affiliate, sale.ID)
	require.ErrorAs(t, err, &authErr)
}

func TestRefundWithoutEntries(t *testing.T) {
	f := setup(t)
	sale := dbtest.SeedSale(t, f.db, models.SaleStatusPending, 1_000, f.manager, nil)

	result, err := f.svc.ProcessRefund(context.Background(), admin, sale.ID, "early refund")
	require.NoError(t, err)
	assert.Empty(t, result.Reversals)
	assert.Equal(t, models.SaleStatusRefunded, result.Sale.Status)

	restored, err := f.svc.CancelRefund(context.Background(), admin, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusPending, restored.Status)
}

func TestCancelRefundRestoresPosition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sale := f.scenarioSale(t)

	_, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "mistake")
	require.NoError(t, err)

	restored, err := f.svc.CancelRefund(ctx, admin, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusConfirmed, restored.Status)
	assert.Nil(t, restored.RefundedAt)

	assert.True(t, f.balance(t, sale.ID, f.manager.ID).Equal(decimal.NewFromInt(100_000)))
	assert.True(t, f.balance(t, sale.ID, f.agent.ID).Equal(decimal.NewFromInt(50_000)))

	var refunds int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).
		Where("sale_id = ? AND entry_type = ?", sale.ID, models.EntryTypeRefund).
		Count(&refunds).Error)
	assert.Zero(t, refunds)

	var durable int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Where("sale_id = ?", sale.ID).Count(&durable).Error)
	assert.EqualValues(t, 3, durable)

	_, err = f.svc.CancelRefund(ctx, admin, sale.ID)
	var state *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &state)
}

func TestRefundCancelRefundIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	type mirror struct {
		reverses uint64
		amount   string
	}
	collect := func(entries []models.LedgerEntry) []mirror {
		out := make([]mirror, 0, len(entries))
		for _, e := range entries {
			out = append(out, mirror{reverses: *e.ReversesEntryID, amount: e.Amount.String()})
		}
		return out
	}

	once := f.scenarioSale(t)
	single, err := f.svc.ProcessRefund(ctx, admin, once.ID, "r")
	require.NoError(t, err)

	sale := f.scenarioSale(t)
	_, err = f.svc.ProcessRefund(ctx, admin, sale.ID, "r")
	require.NoError(t, err)
	_, err = f.svc.CancelRefund(ctx, admin, sale.ID)
	require.NoError(t, err)
	second, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "r")
	require.NoError(t, err)

	var stored []models.LedgerEntry
	require.NoError(t, f.db.Where("sale_id = ? AND entry_type = ?", sale.ID, models.EntryTypeRefund).
		Order("id ASC").Find(&stored).Error)
	assert.Equal(t, collect(second.Reversals), collect(stored))
	assert.Len(t, stored, len(single.Reversals))

	// Same shape as the single-refund sale: one mirror per original, same amounts
	for i := range stored {
		assert.Equal(t, single.Reversals[i].Amount.String(), stored[i].Amount.String())
	}
}

func TestCancelRefundBlockedBySettledReversal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sale := f.scenarioSale(t)

	result, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "r")
	require.NoError(t, err)
	require.NoError(t, f.ledger.MarkSettled(ctx, []uint64{result.Reversals[0].ID}, uuid.New()))

	_, err = f.svc.CancelRefund(ctx, admin, sale.ID)
	var state *apperrors.InvalidStateError
	require.ErrorAs(t, err, &state)

	entries, err := f.ledger.Entries(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestRefundAfterSettlementPostsUnsettledReversals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sale := f.scenarioSale(t)

	entries, err := f.ledger.Entries(ctx, sale.ID)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	require.NoError(t, f.ledger.MarkSettled(ctx, ids, uuid.New()))

	result, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "after payout")
	require.NoError(t, err)
	require.Len(t, result.Reversals, 3)

	unsettled, err := f.ledger.FindUnsettledBySale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, unsettled, 3)
	assert.True(t, ledger.Fold(unsettled).Equal(decimal.NewFromInt(-150_000)))
}

func TestRefundUpdatesLead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	lead := &models.Lead{CustomerName: "Park", Status: models.LeadStatusConverted}
	require.NoError(t, f.db.Create(lead).Error)
	sale := dbtest.SeedSale(t, f.db, models.SaleStatusConfirmed, 1_000, f.manager, nil)
	require.NoError(t, f.db.Model(sale).Update("lead_id", lead.ID).Error)

	_, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "r")
	require.NoError(t, err)

	var stored models.Lead
	require.NoError(t, f.db.First(&stored, "id = ?", lead.ID).Error)
	assert.Equal(t, models.LeadStatusRefunded, stored.Status)

	_, err = f.svc.CancelRefund(ctx, admin, sale.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.First(&stored, "id = ?", lead.ID).Error)
	assert.Equal(t, models.LeadStatusConverted, stored.Status)
	assert.Empty(t, stored.PreRefundStatus)
}

func TestCancelRefundRestoresPriorLeadStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// The inquiry flow may have moved the lead on after conversion
	followUp := models.LeadStatus("FOLLOW_UP")
	lead := &models.Lead{CustomerName: "Choi", Status: followUp}
	require.NoError(t, f.db.Create(lead).Error)
	sale := dbtest.SeedSale(t, f.db, models.SaleStatusConfirmed, 1_000, f.manager, nil)
	require.NoError(t, f.db.Model(sale).Update("lead_id", lead.ID).Error)

	_, err := f.svc.ProcessRefund(ctx, admin, sale.ID, "r")
	require.NoError(t, err)

	var stored models.Lead
	require.NoError(t, f.db.First(&stored, "id = ?", lead.ID).Error)
	assert.Equal(t, models.LeadStatusRefunded, stored.Status)
	assert.Equal(t, followUp, stored.PreRefundStatus)

	_, err = f.svc.CancelRefund(ctx, admin, sale.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.First(&stored, "id = ?", lead.ID).Error)
	assert.Equal(t, followUp, stored.Status)
}
