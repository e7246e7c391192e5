package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

type SegmentFilterMode string

const (
	SegmentFilterOne SegmentFilterMode = "one"
	SegmentFilterAll SegmentFilterMode = "all"
	SegmentFilterAny SegmentFilterMode = "any"
)

// LedgerFilter narrows journal entries and ledger rows. An entry matches a
// segment filter when one of its lines holds the segment (one), when each
// segment is held by some line (all), or when any line holds any of them (any).
type LedgerFilter struct {
	Mode     SegmentFilterMode `json:"mode"`
	Segments []SegmentPair     `json:"segments"`
	Posted   *bool             `json:"posted"`
	FromDate *time.Time        `json:"from_date"`
	ToDate   *time.Time        `json:"to_date"`
	Limit    int               `json:"limit"`
	After    *string           `json:"after"`
}

func (f LedgerFilter) validate() error {
	if len(f.Segments) == 0 {
		return nil
	}
	switch f.Mode {
	case SegmentFilterOne, "":
		if len(f.Segments) != 1 {
			return utils.NewValidationError("filter mode one takes exactly one segment")
		}
	case SegmentFilterAll, SegmentFilterAny:
	default:
		return utils.NewValidationError("invalid filter mode %s", f.Mode)
	}
	return nil
}

func (f LedgerFilter) limit() int {
	if f.Limit <= 0 || f.Limit > config.ListLimit {
		return config.ListLimit
	}
	return f.Limit
}

// segmentIds resolves the filter pairs. A pair that names no segment yields
// ok=false, which can only match nothing for one/all filters.
func (f LedgerFilter) segmentIds(ctx context.Context, db *gorm.DB) (ids []int, ok bool, err error) {
	for _, p := range f.Segments {
		var seg Segment
		err := db.WithContext(ctx).
			Where("segment_type_id = ? AND code = ?", p.SegmentTypeId, p.Code).
			Limit(1).Find(&seg).Error
		if err != nil {
			return nil, false, err
		}
		if seg.ID == 0 {
			if f.Mode == SegmentFilterAny {
				continue
			}
			return nil, false, nil
		}
		ids = append(ids, seg.ID)
	}
	return ids, len(ids) > 0, nil
}

// entryIdSubquery selects journal entry ids whose lines match the segment ids.
// In "all" mode every segment must appear on some line of the entry, not
// necessarily on the same line.
func entryIdSubquery(db *gorm.DB, mode SegmentFilterMode, segmentIds []int) *gorm.DB {
	if mode == SegmentFilterAll {
		segmentIds = utils.UniqueSlice(segmentIds)
		return db.Table("journal_lines l").
			Select("l.entry_id").
			Joins("JOIN segment_combination_details d ON d.combination_id = l.combination_id").
			Where("d.segment_id IN ?", segmentIds).
			Group("l.entry_id").
			Having("COUNT(DISTINCT d.segment_id) = ?", len(segmentIds))
	}
	combs := db.Model(&SegmentCombinationDetail{}).Select("combination_id").Where("segment_id IN ?", segmentIds)
	return db.Model(&JournalLine{}).Select("entry_id").Where("combination_id IN (?)", combs)
}

func (f LedgerFilter) apply(ctx context.Context, db *gorm.DB, q *gorm.DB, idColumn string, dateColumn string) (*gorm.DB, bool, error) {
	if err := f.validate(); err != nil {
		return nil, false, err
	}
	if len(f.Segments) > 0 {
		ids, ok, err := f.segmentIds(ctx, db)
		if err != nil || !ok {
			return nil, false, err
		}
		mode := f.Mode
		if mode == "" {
			mode = SegmentFilterOne
		}
		q = q.Where(idColumn+" IN (?)", entryIdSubquery(db.WithContext(ctx), mode, ids))
	}
	if f.FromDate != nil {
		q = q.Where(dateColumn+" >= ?", utils.DateOnly(*f.FromDate))
	}
	if f.ToDate != nil {
		q = q.Where(dateColumn+" <= ?", utils.DateOnly(*f.ToDate))
	}
	q, err := afterCursor(q, f.After, dateColumn)
	if err != nil {
		return nil, false, err
	}
	return q, true, nil
}

func ListJournalEntries(ctx context.Context, filter LedgerFilter) ([]*JournalEntry, PageInfo, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&JournalEntry{})
	if filter.Posted != nil {
		q = q.Where("posted = ?", *filter.Posted)
	}
	q, ok, err := filter.apply(ctx, db, q, "id", "date")
	if err != nil {
		return nil, PageInfo{}, err
	}
	results := make([]*JournalEntry, 0)
	if !ok {
		return results, PageInfo{}, nil
	}
	if err := q.Preload("Lines").Order("date DESC, id DESC").Limit(filter.limit() + 1).Find(&results).Error; err != nil {
		return nil, PageInfo{}, err
	}
	results, info := Page(results, filter.limit())
	return results, info, nil
}

func ListGeneralLedger(ctx context.Context, filter LedgerFilter) ([]*GeneralLedger, PageInfo, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&GeneralLedger{})
	q, ok, err := filter.apply(ctx, db, q, "journal_entry_id", "submitted_date")
	if err != nil {
		return nil, PageInfo{}, err
	}
	results := make([]*GeneralLedger, 0)
	if !ok {
		return results, PageInfo{}, nil
	}
	if err := q.Order("submitted_date DESC, id DESC").Limit(filter.limit() + 1).Find(&results).Error; err != nil {
		return nil, PageInfo{}, err
	}
	results, info := Page(results, filter.limit())
	return results, info, nil
}
