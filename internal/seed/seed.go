// Package seed bootstraps reference data so a fresh install is usable
// without manual setup.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"gorm.io/gorm"
)

// defaultTiers mirror the ladder shipped with the original product.
// Earnings minimums are cents of lifetime commission.
var defaultTiers = []tierdomain.Tier{
	{Level: 1, Name: "Bronze", MinEarningsCents: 0, MinReferrals: 0, CommissionRate: 5, CascadeRateL1: 2, CascadeRateL2: 1, CascadeRateL3: 0.5},
	{Level: 2, Name: "Silver", MinEarningsCents: 50_000, MinReferrals: 10, CommissionRate: 7, CascadeRateL1: 3, CascadeRateL2: 1.5, CascadeRateL3: 0.75},
	{Level: 3, Name: "Gold", MinEarningsCents: 200_000, MinReferrals: 50, CommissionRate: 10, CascadeRateL1: 4, CascadeRateL2: 2, CascadeRateL3: 1},
	{Level: 4, Name: "Platinum", MinEarningsCents: 1_000_000, MinReferrals: 200, CommissionRate: 15, CascadeRateL1: 5, CascadeRateL2: 2.5, CascadeRateL3: 1.25},
	{Level: 5, Name: "Diamond", MinEarningsCents: 5_000_000, MinReferrals: 1000, CommissionRate: 20, CascadeRateL1: 7, CascadeRateL2: 3.5, CascadeRateL3: 1.75},
}

// EnsureDefaultTiers inserts the default tier ladder. Existing levels
// are left untouched so operators can tune rates without the seed
// stomping on them at every boot.
func EnsureDefaultTiers(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tier := range defaultTiers {
			var existing tierdomain.Tier
			err := tx.Where("level = ?", tier.Level).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			tier.ID = node.Generate()
			tier.Slug = slug.Make(tier.Name)
			if err := tx.Create(&tier).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
