package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCombinationImmutable = errors.New("segment combinations are immutable")

// SegmentCombination identifies one ledger account as a tuple of segment
// values, one per segment type. Rows are never changed after creation;
// CombinationKey makes equal tuples collide on insert.
type SegmentCombination struct {
	ID             int                        `gorm:"primary_key" json:"id"`
	CombinationKey string                     `gorm:"size:500;not null;unique" json:"combination_key"`
	Description    string                     `gorm:"size:255" json:"description"`
	IsActive       *bool                      `gorm:"not null;default:true" json:"is_active"`
	Details        []SegmentCombinationDetail `gorm:"foreignKey:CombinationId" json:"details"`
	CreatedAt      time.Time                  `gorm:"autoCreateTime" json:"created_at"`
}

type SegmentCombinationDetail struct {
	ID            int      `gorm:"primary_key" json:"id"`
	CombinationId int      `gorm:"not null;index:uniq_combination_type,unique,priority:1" json:"combination_id"`
	SegmentTypeId int      `gorm:"not null;index:uniq_combination_type,unique,priority:2;index" json:"segment_type_id"`
	SegmentId     int      `gorm:"not null;index" json:"segment_id"`
	Segment       *Segment `gorm:"foreignKey:SegmentId" json:"segment,omitempty"`
}

// SegmentPair names one segment value by type and code.
type SegmentPair struct {
	SegmentTypeId int    `json:"segment_type_id" validate:"required"`
	Code          string `json:"code" validate:"required"`
}

func (SegmentCombination) BeforeUpdate(tx *gorm.DB) error { return ErrCombinationImmutable }

func (SegmentCombination) BeforeDelete(tx *gorm.DB) error { return ErrCombinationImmutable }

func (SegmentCombinationDetail) BeforeUpdate(tx *gorm.DB) error { return ErrCombinationImmutable }

func (SegmentCombinationDetail) BeforeDelete(tx *gorm.DB) error { return ErrCombinationImmutable }

// UpdateCombination and DeleteCombination exist so the API can answer with the
// immutability error instead of a missing route.
func UpdateCombination(ctx context.Context, id int) error {
	return utils.NewValidationError("%s", ErrCombinationImmutable.Error())
}

func DeleteCombination(ctx context.Context, id int) error {
	return utils.NewValidationError("%s", ErrCombinationImmutable.Error())
}

// combinationKey is "type:segment" pairs ordered by segment type id.
func combinationKey(details []SegmentCombinationDetail) string {
	sorted := make([]SegmentCombinationDetail, len(details))
	copy(sorted, details)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SegmentTypeId < sorted[j].SegmentTypeId })
	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, strconv.Itoa(d.SegmentTypeId)+":"+strconv.Itoa(d.SegmentId))
	}
	return strings.Join(parts, "|")
}

// validatePairs checks the shape of a pair list before any lookup.
func validatePairs(pairs []SegmentPair) error {
	if len(pairs) == 0 {
		return utils.NewValidationError("segment list cannot be empty")
	}
	seen := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		if p.SegmentTypeId <= 0 || strings.TrimSpace(p.Code) == "" {
			return utils.NewValidationError("each segment needs a segment type and a code")
		}
		if seen[p.SegmentTypeId] {
			return utils.NewValidationError("duplicate segment type %d in segment list", p.SegmentTypeId)
		}
		seen[p.SegmentTypeId] = true
	}
	return nil
}

// resolvePairs maps pairs to details. strict makes unknown types and codes
// errors; otherwise ok is false.
func resolvePairs(ctx context.Context, tx *gorm.DB, pairs []SegmentPair, strict bool) (details []SegmentCombinationDetail, codes []string, ok bool, err error) {
	if err := validatePairs(pairs); err != nil {
		return nil, nil, false, err
	}
	db := txOrDB(ctx, tx)
	for _, p := range pairs {
		var st SegmentType
		if err := db.First(&st, p.SegmentTypeId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if strict {
					return nil, nil, false, utils.NewValidationError("segment type %d does not exist", p.SegmentTypeId)
				}
				return nil, nil, false, nil
			}
			return nil, nil, false, err
		}
		code := strings.TrimSpace(p.Code)
		var seg Segment
		if err := db.Where("segment_type_id = ? AND code = ?", st.ID, code).First(&seg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if strict {
					return nil, nil, false, utils.NewValidationError("segment code %s does not exist for segment type %s", code, st.SegmentName)
				}
				return nil, nil, false, nil
			}
			return nil, nil, false, err
		}
		if strict && !seg.Active() {
			return nil, nil, false, utils.NewValidationError("segment %s of type %s is inactive", code, st.SegmentName)
		}
		details = append(details, SegmentCombinationDetail{SegmentTypeId: st.ID, SegmentId: seg.ID})
		codes = append(codes, code)
	}
	return details, codes, true, nil
}

// FindCombination returns the combination made of exactly pairs, or nil.
func FindCombination(ctx context.Context, tx *gorm.DB, pairs []SegmentPair) (*SegmentCombination, error) {
	details, _, ok, err := resolvePairs(ctx, tx, pairs, false)
	if err != nil || !ok {
		return nil, err
	}
	return findCombinationByKey(ctx, tx, combinationKey(details))
}

// findCombinationByKey with latest set uses a locking read, which sees rows
// committed after the caller's transaction snapshot.
func findCombinationByKey(ctx context.Context, tx *gorm.DB, key string, latest ...bool) (*SegmentCombination, error) {
	var comb SegmentCombination
	q := txOrDB(ctx, tx)
	if len(latest) > 0 && latest[0] {
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	}
	err := q.Preload("Details").Where("combination_key = ?", key).First(&comb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &comb, nil
}

// CreateCombination inserts a new combination. It fails with a conflict if
// the tuple already exists.
func CreateCombination(ctx context.Context, tx *gorm.DB, pairs []SegmentPair, description string) (*SegmentCombination, error) {
	details, codes, _, err := resolvePairs(ctx, tx, pairs, true)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		description = strings.Join(codes, "-")
	}
	comb := SegmentCombination{
		CombinationKey: combinationKey(details),
		Description:    description,
		IsActive:       utils.NewTrue(),
		Details:        details,
	}
	create := func(t *gorm.DB) error {
		return t.Create(&comb).Error
	}
	if tx != nil {
		// savepoint so a duplicate key does not abort the caller's transaction
		err = tx.WithContext(ctx).Transaction(create)
	} else {
		err = runInTx(ctx, create)
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("segment combination already exists")
		}
		return nil, err
	}
	return &comb, nil
}

// GetOrCreateCombination returns the combination for pairs, creating it when
// missing. Concurrent callers with the same tuple end up with the same row.
func GetOrCreateCombination(ctx context.Context, tx *gorm.DB, pairs []SegmentPair, description string) (*SegmentCombination, bool, error) {
	details, _, ok, err := resolvePairs(ctx, tx, pairs, false)
	if err != nil {
		return nil, false, err
	}
	if ok {
		existing, err := findCombinationByKey(ctx, tx, combinationKey(details))
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	created, err := CreateCombination(ctx, tx, pairs, description)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, utils.ErrorConflict) {
		return nil, false, err
	}
	existing, err := findCombinationByKey(ctx, tx, combinationKey(details), true)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("segment combination conflict without row: %w", utils.ErrorConflict)
	}
	return existing, false, nil
}

func GetCombination(ctx context.Context, id int) (*SegmentCombination, error) {
	return fetchModel[SegmentCombination](ctx, nil, id, "Details", "Details.Segment")
}

// GetCombinationsByIds is the batch function behind the combination loader.
func GetCombinationsByIds(ctx context.Context, ids []int) ([]*SegmentCombination, error) {
	var results []*SegmentCombination
	if err := config.GetDB().WithContext(ctx).Preload("Details").Preload("Details.Segment").
		Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ListCombinations(ctx context.Context, segmentId int, limit int) ([]*SegmentCombination, error) {
	if limit <= 0 || limit > config.ListLimit {
		limit = config.ListLimit
	}
	q := config.GetDB().WithContext(ctx).Preload("Details").Preload("Details.Segment").Order("id DESC").Limit(limit)
	if segmentId > 0 {
		q = q.Where("id IN (?)", config.GetDB().Model(&SegmentCombinationDetail{}).Select("combination_id").Where("segment_id = ?", segmentId))
	}
	var results []*SegmentCombination
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// combinationSegmentTypes returns the segment type ids present in a combination.
func combinationSegmentTypes(ctx context.Context, tx *gorm.DB, combinationId int) (map[int]bool, error) {
	var typeIds []int
	if err := txOrDB(ctx, tx).Model(&SegmentCombinationDetail{}).
		Where("combination_id = ?", combinationId).Pluck("segment_type_id", &typeIds).Error; err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(typeIds))
	for _, id := range typeIds {
		out[id] = true
	}
	return out, nil
}

// combinationSegmentIds returns the segment ids of the given combinations.
func combinationSegmentIds(ctx context.Context, tx *gorm.DB, combinationIds []int) ([]int, error) {
	var ids []int
	if len(combinationIds) == 0 {
		return ids, nil
	}
	if err := txOrDB(ctx, tx).Model(&SegmentCombinationDetail{}).
		Where("combination_id IN ?", combinationIds).Distinct().Pluck("segment_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
