package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/models"
)

// SeedProfile inserts an active profile of the given type
func SeedProfile(t *testing.T, db *gorm.DB, profileType models.ProfileType) *models.Profile {
	t.Helper()
	id := uuid.New()
	profile := &models.Profile{
		Base:               models.Base{ID: id},
		Type:               profileType,
		Status:             models.ProfileStatusActive,
		AffiliateCode:      fmt.Sprintf("code-%s", id.String()[:8]),
		DisplayName:        string(profileType) + " " + id.String()[:4],
		ContractApprovedAt: time.Now(),
	}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

// SeedSale inserts a sale attributed to manager and agent (either may be nil)
func SeedSale(t *testing.T, db *gorm.DB, status models.SaleStatus, amount int64, manager, agent *models.Profile) *models.Sale {
	t.Helper()
	sale := &models.Sale{
		SaleAmount:  decimal.NewFromInt(amount),
		Currency:    "KRW",
		ProductCode: "CRUISE-MED-7N",
		Status:      status,
	}
	if manager != nil {
		sale.ManagerID = &manager.ID
	}
	if agent != nil {
		sale.AgentID = &agent.ID
	}
	if status == models.SaleStatusConfirmed {
		now := time.Now()
		sale.ConfirmedAt = &now
	}
	require.NoError(t, db.Create(sale).Error)
	return sale
}
