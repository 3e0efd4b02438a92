package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/models"
)

func addLeadPreRefundStatusMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_lead_pre_refund_status",
		Migrate: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&models.Lead{}, "PreRefundStatus") {
				return nil
			}
			return tx.Migrator().AddColumn(&models.Lead{}, "PreRefundStatus")
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropColumn(&models.Lead{}, "PreRefundStatus")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, addLeadPreRefundStatusMigration())
}
