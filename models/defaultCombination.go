package models

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// DefaultCombination is the ledger account used for the balancing side of
// system generated entries (AP/AR control accounts, payment clearing).
type DefaultCombination struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	TransactionType TransactionType     `gorm:"size:30;not null;unique" json:"transaction_type"`
	CombinationId   int                 `gorm:"not null;index" json:"combination_id"`
	Combination     *SegmentCombination `gorm:"foreignKey:CombinationId" json:"combination,omitempty"`
	IsActive        *bool               `gorm:"not null;default:true" json:"is_active"`
	CreatedBy       int                 `json:"created_by"`
	UpdatedBy       int                 `json:"updated_by"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDefaultCombination struct {
	TransactionType TransactionType `json:"transaction_type" validate:"required"`
	CombinationId   int             `json:"combination_id" validate:"required"`
}

// DefaultValidity is one row of CheckAllDefaultsValidity.
type DefaultValidity struct {
	TransactionType TransactionType `json:"transaction_type"`
	Configured      bool            `json:"configured"`
	Valid           bool            `json:"valid"`
	Missing         []string        `json:"missing"`
	Deactivated     bool            `json:"deactivated"`
}

/*
caches:
	DefaultCombination:<transaction_type>
*/

func defaultCacheKey(txType TransactionType) string {
	return "DefaultCombination:" + string(txType)
}

// missingRequiredTypes lists the names of active required segment types not
// present in the combination, sorted.
func missingRequiredTypes(types []*SegmentType, present map[int]bool) []string {
	missing := make([]string, 0)
	for _, t := range types {
		if t.IsRequired && t.Active() && !present[t.ID] {
			missing = append(missing, t.SegmentName)
		}
	}
	sort.Strings(missing)
	return missing
}

func checkCombinationComplete(ctx context.Context, tx *gorm.DB, combinationId int) ([]string, error) {
	var types []*SegmentType
	if err := txOrDB(ctx, tx).Where("is_required = ?", true).Find(&types).Error; err != nil {
		return nil, err
	}
	present, err := combinationSegmentTypes(ctx, tx, combinationId)
	if err != nil {
		return nil, err
	}
	return missingRequiredTypes(types, present), nil
}

// CreateOrUpdateDefault points txType at combinationId. The combination must
// carry every required segment type. Updating reactivates the default.
func CreateOrUpdateDefault(ctx context.Context, input *NewDefaultCombination) (*DefaultCombination, bool, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, false, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, false, err
	}
	if !input.TransactionType.IsValid() {
		return nil, false, utils.NewValidationError("invalid transaction type %s", input.TransactionType)
	}
	var result DefaultCombination
	created := false
	err := runInTx(ctx, func(tx *gorm.DB) error {
		comb, err := fetchModel[SegmentCombination](ctx, tx, input.CombinationId)
		if err != nil {
			return err
		}
		if comb.IsActive != nil && !*comb.IsActive {
			return utils.NewValidationError("segment combination %d is inactive", comb.ID)
		}
		missing, err := checkCombinationComplete(ctx, tx, comb.ID)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return utils.NewValidationError("missing required segment types: %s", strings.Join(missing, ", "))
		}
		err = lockForUpdate(tx).Where("transaction_type = ?", input.TransactionType).First(&result).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			result = DefaultCombination{
				TransactionType: input.TransactionType,
				CombinationId:   comb.ID,
				IsActive:        utils.NewTrue(),
			}
			return tx.Create(&result).Error
		}
		if err != nil {
			return err
		}
		result.CombinationId = comb.ID
		result.IsActive = utils.NewTrue()
		return tx.Model(&result).Updates(map[string]interface{}{
			"CombinationId": comb.ID,
			"IsActive":      true,
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	if err := config.RemoveRedisKey(defaultCacheKey(input.TransactionType)); err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

// GetDefaultFor returns the active default of txType.
func GetDefaultFor(ctx context.Context, txType TransactionType) (*DefaultCombination, error) {
	var result DefaultCombination
	exists, err := config.GetRedisObject(defaultCacheKey(txType), &result)
	if err != nil {
		return nil, err
	}
	if exists {
		return &result, nil
	}
	err = config.GetDB().WithContext(ctx).
		Where("transaction_type = ? AND is_active = ?", txType, true).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("no active default combination for %s", txType)
		}
		return nil, err
	}
	if err := config.SetRedisObject(defaultCacheKey(txType), &result, config.CacheLifespan()); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSegmentDetails returns the default's combination with its segments.
func GetSegmentDetails(ctx context.Context, txType TransactionType) (*SegmentCombination, error) {
	def, err := GetDefaultFor(ctx, txType)
	if err != nil {
		return nil, err
	}
	return GetCombination(ctx, def.CombinationId)
}

func ListDefaultCombinations(ctx context.Context) ([]*DefaultCombination, error) {
	var results []*DefaultCombination
	err := config.GetDB().WithContext(ctx).Preload("Combination").Order("transaction_type").Find(&results).Error
	return results, err
}

// CheckAllDefaultsValidity re-checks every configured default against the
// current required segment types and deactivates the ones that fail.
func CheckAllDefaultsValidity(ctx context.Context) ([]DefaultValidity, error) {
	report := make([]DefaultValidity, 0, len(transactionTypes))
	var changed []string
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var defaults []DefaultCombination
		if err := lockForUpdate(tx).Find(&defaults).Error; err != nil {
			return err
		}
		byType := make(map[TransactionType]DefaultCombination, len(defaults))
		for _, d := range defaults {
			byType[d.TransactionType] = d
		}
		for _, txType := range transactionTypes {
			row := DefaultValidity{TransactionType: txType, Missing: []string{}}
			d, ok := byType[txType]
			if !ok {
				report = append(report, row)
				continue
			}
			row.Configured = true
			missing, err := checkCombinationComplete(ctx, tx, d.CombinationId)
			if err != nil {
				return err
			}
			row.Missing = missing
			row.Valid = len(missing) == 0
			if !row.Valid && (d.IsActive == nil || *d.IsActive) {
				if err := tx.Model(&d).Update("IsActive", false).Error; err != nil {
					return err
				}
				row.Deactivated = true
				changed = append(changed, defaultCacheKey(txType))
			}
			report = append(report, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		if err := config.RemoveRedisKey(changed...); err != nil {
			return nil, err
		}
	}
	return report, nil
}
