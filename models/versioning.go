package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// EffectivePeriod is the validity window of one version of a date-effective
// record. Both ends are inclusive; a nil end is open.
type EffectivePeriod struct {
	EffectiveStartDate time.Time  `gorm:"type:date;not null;index" json:"effective_start_date"`
	EffectiveEndDate   *time.Time `gorm:"type:date;index" json:"effective_end_date"`
}

// VersionStatus is computed from the effective dates against today.
type VersionStatus string

const (
	VersionStatusActive   VersionStatus = "ACTIVE"
	VersionStatusInactive VersionStatus = "INACTIVE"
)

func (p EffectivePeriod) ActiveOn(date time.Time) bool {
	d := utils.DateOnly(date)
	if utils.DateOnly(p.EffectiveStartDate).After(d) {
		return false
	}
	return p.EffectiveEndDate == nil || !utils.DateOnly(*p.EffectiveEndDate).Before(d)
}

func (p EffectivePeriod) Status() VersionStatus {
	if p.ActiveOn(time.Now()) {
		return VersionStatusActive
	}
	return VersionStatusInactive
}

func (p EffectivePeriod) validate() error {
	if p.EffectiveStartDate.IsZero() {
		return utils.NewFieldValidationError("effective start date is required", map[string]string{"effective_start_date": "required"})
	}
	if p.EffectiveEndDate != nil && utils.DateOnly(*p.EffectiveEndDate).Before(utils.DateOnly(p.EffectiveStartDate)) {
		return utils.NewFieldValidationError("effective end date is before start date", map[string]string{"effective_end_date": "gtefield"})
	}
	return nil
}

// Overlaps reports whether two windows share at least one day.
func (p EffectivePeriod) Overlaps(o EffectivePeriod) bool {
	if p.EffectiveEndDate != nil && utils.DateOnly(*p.EffectiveEndDate).Before(utils.DateOnly(o.EffectiveStartDate)) {
		return false
	}
	if o.EffectiveEndDate != nil && utils.DateOnly(*o.EffectiveEndDate).Before(utils.DateOnly(p.EffectiveStartDate)) {
		return false
	}
	return true
}

// deactivationDate defaults to yesterday and never precedes the start.
func (p EffectivePeriod) deactivationDate(end *time.Time, now time.Time) time.Time {
	d := utils.DateOnly(now).AddDate(0, 0, -1)
	if end != nil {
		d = utils.DateOnly(*end)
	}
	if start := utils.DateOnly(p.EffectiveStartDate); d.Before(start) {
		d = start
	}
	return d
}

// versioned is implemented by pointers to date-effective models. All
// versions of one record share the value of versionKey's column.
type versioned interface {
	versionKey() (column string, value string)
	effective() *EffectivePeriod
	recordId() int
	resetId()
}

func whereActiveOn(q *gorm.DB, date time.Time) *gorm.DB {
	d := utils.DateOnly(date)
	return q.Where("effective_start_date <= ? AND (effective_end_date IS NULL OR effective_end_date >= ?)", d, d)
}

// checkVersionOverlap fails when another version of the same key shares a
// day with rec.
func checkVersionOverlap[T any, P interface {
	*T
	versioned
}](ctx context.Context, tx *gorm.DB, rec P) error {
	column, value := rec.versionKey()
	period := rec.effective()
	q := tx.WithContext(ctx).Model(new(T)).
		Where(column+" = ? AND id <> ?", value, rec.recordId()).
		Where("effective_end_date IS NULL OR effective_end_date >= ?", utils.DateOnly(period.EffectiveStartDate))
	if period.EffectiveEndDate != nil {
		q = q.Where("effective_start_date <= ?", utils.DateOnly(*period.EffectiveEndDate))
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewFieldValidationError("date range overlaps with an existing version of "+value,
			map[string]string{"effective_start_date": "overlap"})
	}
	return nil
}

func saveVersion[T any, P interface {
	*T
	versioned
}](ctx context.Context, tx *gorm.DB, rec P) error {
	if err := rec.effective().validate(); err != nil {
		return err
	}
	if err := checkVersionOverlap[T, P](ctx, tx, rec); err != nil {
		return err
	}
	if rec.recordId() == 0 {
		return tx.WithContext(ctx).Create(rec).Error
	}
	return tx.WithContext(ctx).Save(rec).Error
}

// findVersionOn returns the version of key active on date.
func findVersionOn[T any](ctx context.Context, tx *gorm.DB, column, value string, date time.Time) (*T, error) {
	var result T
	err := whereActiveOn(txOrDB(ctx, tx).Where(column+" = ?", value), date).
		Order("effective_start_date DESC").First(&result).Error
	if err != nil {
		return nil, notFound[T](err)
	}
	return &result, nil
}

func listVersionsOn[T any](ctx context.Context, date *time.Time, order string) ([]*T, error) {
	q := config.GetDB().WithContext(ctx)
	if date != nil {
		q = whereActiveOn(q, *date)
	}
	var results []*T
	err := q.Order(order).Limit(config.ListLimit).Find(&results).Error
	return results, err
}

func versionHistory[T any](ctx context.Context, column, value string) ([]*T, error) {
	var results []*T
	err := config.GetDB().WithContext(ctx).Where(column+" = ?", value).
		Order("effective_start_date DESC").Find(&results).Error
	return results, err
}

// updateVersion applies change to version id. A nil or equal newStart
// corrects the version in place. A later newStart end-dates the current
// version the day before and saves the changed copy as a new version that
// keeps the old end date.
func updateVersion[T any, P interface {
	*T
	versioned
}](ctx context.Context, id int, newStart *time.Time, change func(tx *gorm.DB, rec P) error) (P, error) {
	var result P
	err := runInTx(ctx, func(tx *gorm.DB) error {
		current, err := fetchModelForUpdate[T](ctx, tx, id)
		if err != nil {
			return err
		}
		cur := P(current)
		start := utils.DateOnly(cur.effective().EffectiveStartDate)
		if newStart == nil || utils.DateOnly(*newStart).Equal(start) {
			if err := change(tx, cur); err != nil {
				return err
			}
			result = cur
			return saveVersion[T, P](ctx, tx, cur)
		}
		next := utils.DateOnly(*newStart)
		if next.Before(start) {
			return utils.NewFieldValidationError("new version cannot start before the current version",
				map[string]string{"effective_start_date": "gtefield"})
		}
		if end := cur.effective().EffectiveEndDate; end != nil && next.After(utils.DateOnly(*end)) {
			return utils.NewFieldValidationError("new version starts after the current version ends",
				map[string]string{"effective_start_date": "ltefield"})
		}
		copied := *current
		nv := P(&copied)
		originalEnd := cur.effective().EffectiveEndDate
		dayBefore := next.AddDate(0, 0, -1)
		cur.effective().EffectiveEndDate = &dayBefore
		if err := tx.WithContext(ctx).Model(current).Update("EffectiveEndDate", &dayBefore).Error; err != nil {
			return err
		}
		nv.resetId()
		nv.effective().EffectiveStartDate = next
		nv.effective().EffectiveEndDate = originalEnd
		if err := change(tx, nv); err != nil {
			return err
		}
		result = nv
		return saveVersion[T, P](ctx, tx, nv)
	})
	if err != nil {
		var zero P
		return zero, err
	}
	return result, nil
}

// deactivateVersion end-dates version id on end, default yesterday.
func deactivateVersion[T any, P interface {
	*T
	versioned
}](ctx context.Context, id int, end *time.Time) (P, error) {
	var result P
	err := runInTx(ctx, func(tx *gorm.DB) error {
		current, err := fetchModelForUpdate[T](ctx, tx, id)
		if err != nil {
			return err
		}
		rec := P(current)
		d := rec.effective().deactivationDate(end, time.Now())
		rec.effective().EffectiveEndDate = &d
		result = rec
		return tx.WithContext(ctx).Model(current).Update("EffectiveEndDate", &d).Error
	})
	if err != nil {
		var zero P
		return zero, err
	}
	return result, nil
}

// requireActiveReference checks that a referenced record has a version on
// date.
func requireActiveReference[T any](ctx context.Context, tx *gorm.DB, column, value string, date time.Time, field string) error {
	if value == "" {
		return nil
	}
	_, err := findVersionOn[T](ctx, tx, column, value, date)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return utils.NewFieldValidationError(field+" "+value+" is not active on "+date.Format("2006-01-02"),
			map[string]string{field: "inactive"})
	}
	return err
}
