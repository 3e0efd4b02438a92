package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// A sales agent has at most one ACTIVE manager relation at a time.
func createActiveRelationIndexMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_one_active_manager",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_profile_relations_one_active
				ON profile_relations (agent_id)
				WHERE status = 'ACTIVE' AND deleted_at IS NULL
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP INDEX IF EXISTS idx_profile_relations_one_active").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createActiveRelationIndexMigration())
}
