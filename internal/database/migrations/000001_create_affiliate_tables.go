package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/security/audit"
)

func createAffiliateTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_affiliate_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Profile{},
				&models.ProfileRelation{},
				&models.Lead{},
				&models.Sale{},
				&models.LedgerEntry{},
				&models.AdjustmentRequest{},
				&models.SettlementBatch{},
				&audit.AuditLog{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				"audit_logs",
				"settlement_batches",
				"adjustment_requests",
				"ledger_entries",
				"sales",
				"leads",
				"profile_relations",
				"profiles",
			)
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createAffiliateTablesMigration())
}
