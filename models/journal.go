package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type JournalEntry struct {
	ID           int           `gorm:"primary_key" json:"id"`
	Date         time.Time     `gorm:"type:date;not null;index" json:"date"`
	CurrencyCode string        `gorm:"size:3;not null" json:"currency_code"`
	Memo         string        `gorm:"type:text" json:"memo"`
	Posted       bool          `gorm:"not null;default:false;index" json:"posted"`
	PostedAt     *time.Time    `json:"posted_at"`
	SourceType   string        `gorm:"size:20;index:idx_journal_source,priority:1" json:"source_type"`
	SourceId     int           `gorm:"index:idx_journal_source,priority:2" json:"source_id"`
	ReversalOfId *int          `gorm:"index" json:"reversal_of_id"`
	Lines        []JournalLine `gorm:"foreignKey:EntryId" json:"lines"`
	CreatedBy    int           `json:"created_by"`
	UpdatedBy    int           `json:"updated_by"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type JournalLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	EntryId       int             `gorm:"not null;index" json:"entry_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,5);not null" json:"amount"`
	Type          EntryType       `gorm:"size:6;not null" json:"type"`
	CombinationId int             `gorm:"not null;index" json:"combination_id"`
	Description   string          `gorm:"size:255" json:"description"`
}

// GeneralLedger is written once per posted journal entry.
type GeneralLedger struct {
	ID             int             `gorm:"primary_key" json:"id"`
	JournalEntryId int             `gorm:"not null;unique" json:"journal_entry_id"`
	SubmittedDate  time.Time       `gorm:"type:date;not null;index" json:"submitted_date"`
	CurrencyCode   string          `gorm:"size:3;not null" json:"currency_code"`
	TotalDebit     decimal.Decimal `gorm:"type:decimal(20,5);not null" json:"total_debit"`
	TotalCredit    decimal.Decimal `gorm:"type:decimal(20,5);not null" json:"total_credit"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewJournalEntry struct {
	Date         time.Time        `json:"date" validate:"required"`
	CurrencyCode string           `json:"currency_code" validate:"required,len=3"`
	Memo         string           `json:"memo"`
	Lines        []NewJournalLine `json:"lines" validate:"required,min=2,dive"`
}

// NewJournalLine takes either a combination id or segment pairs that are
// resolved through GetOrCreateCombination.
type NewJournalLine struct {
	Amount        decimal.Decimal `json:"amount"`
	Type          EntryType       `json:"type" validate:"required"`
	CombinationId int             `json:"combination_id"`
	Segments      []SegmentPair   `json:"segments"`
	Description   string          `json:"description"`
}

func (e JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		if l.Type == EntryTypeDebit {
			total = total.Add(l.Amount)
		}
	}
	return total
}

func (e JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		if l.Type == EntryTypeCredit {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// Difference is debits minus credits.
func (e JournalEntry) Difference() decimal.Decimal {
	return e.TotalDebit().Sub(e.TotalCredit())
}

func (e JournalEntry) IsBalanced() bool {
	return e.Difference().IsZero()
}

func validateJournalLines(lines []JournalLine) error {
	if len(lines) < 2 {
		return utils.NewValidationError("a journal entry needs at least two lines")
	}
	for i, l := range lines {
		if !l.Amount.IsPositive() {
			return utils.NewValidationError("line %d: amount must be greater than zero", i+1)
		}
		if !l.Type.IsValid() {
			return utils.NewValidationError("line %d: invalid type %s", i+1, l.Type)
		}
		if l.CombinationId <= 0 {
			return utils.NewValidationError("line %d: combination is required", i+1)
		}
	}
	return nil
}

func resolveJournalLines(ctx context.Context, tx *gorm.DB, input []NewJournalLine) ([]JournalLine, error) {
	lines := make([]JournalLine, 0, len(input))
	for i, in := range input {
		combId := in.CombinationId
		if combId == 0 && len(in.Segments) > 0 {
			comb, _, err := GetOrCreateCombination(ctx, tx, in.Segments, "")
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			combId = comb.ID
		} else if combId > 0 {
			if _, err := fetchModel[SegmentCombination](ctx, tx, combId); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		lines = append(lines, JournalLine{
			Amount:        in.Amount,
			Type:          in.Type,
			CombinationId: combId,
			Description:   in.Description,
		})
	}
	return lines, validateJournalLines(lines)
}

func CreateJournalEntry(ctx context.Context, input *NewJournalEntry) (*JournalEntry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var entry *JournalEntry
	err := runInTx(ctx, func(tx *gorm.DB) error {
		lines, err := resolveJournalLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		entry = &JournalEntry{
			Date:         utils.DateOnly(input.Date),
			CurrencyCode: input.CurrencyCode,
			Memo:         input.Memo,
			SourceType:   "MANUAL",
			Lines:        lines,
		}
		return createJournalEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func createJournalEntryTx(ctx context.Context, tx *gorm.DB, entry *JournalEntry) error {
	if err := validateJournalLines(entry.Lines); err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// UpdateJournalEntry replaces header and lines of an unposted entry.
func UpdateJournalEntry(ctx context.Context, id int, input *NewJournalEntry) (*JournalEntry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		entry, err := fetchModelForUpdate[JournalEntry](ctx, tx, id)
		if err != nil {
			return err
		}
		if entry.Posted {
			return utils.NewValidationError("posted journal entries cannot be changed")
		}
		lines, err := resolveJournalLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		if err := tx.Where("entry_id = ?", id).Delete(&JournalLine{}).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].EntryId = id
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		return tx.Model(entry).Updates(map[string]interface{}{
			"Date":         utils.DateOnly(input.Date),
			"CurrencyCode": input.CurrencyCode,
			"Memo":         input.Memo,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetJournalEntry(ctx, id)
}

func DeleteJournalEntry(ctx context.Context, id int) (*JournalEntry, error) {
	var entry *JournalEntry
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = fetchModelForUpdate[JournalEntry](ctx, tx, id)
		if err != nil {
			return err
		}
		if entry.Posted {
			return utils.NewValidationError("posted journal entries cannot be deleted")
		}
		if entry.SourceType != "" && entry.SourceType != "MANUAL" {
			return utils.NewValidationError("journal entry belongs to %s %d", entry.SourceType, entry.SourceId)
		}
		if err := tx.Where("entry_id = ?", id).Delete(&JournalLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func AddJournalLine(ctx context.Context, entryId int, input *NewJournalLine) (*JournalEntry, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		entry, err := fetchModelForUpdate[JournalEntry](ctx, tx, entryId)
		if err != nil {
			return err
		}
		if entry.Posted {
			return utils.NewValidationError("cannot add lines to a posted journal entry")
		}
		lines, err := resolveJournalLines(ctx, tx, []NewJournalLine{*input, *input})
		if err != nil {
			return err
		}
		line := lines[0]
		line.EntryId = entryId
		return tx.Create(&line).Error
	})
	if err != nil {
		return nil, err
	}
	return GetJournalEntry(ctx, entryId)
}

func DeleteJournalLine(ctx context.Context, entryId int, lineId int) (*JournalEntry, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		entry, err := fetchModelForUpdate[JournalEntry](ctx, tx, entryId)
		if err != nil {
			return err
		}
		if entry.Posted {
			return utils.NewValidationError("cannot remove lines from a posted journal entry")
		}
		res := tx.Where("id = ? AND entry_id = ?", lineId, entryId).Delete(&JournalLine{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("journal line %w", utils.ErrorRecordNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetJournalEntry(ctx, entryId)
}

func GetJournalEntry(ctx context.Context, id int) (*JournalEntry, error) {
	return fetchModel[JournalEntry](ctx, nil, id, "Lines")
}

func PostJournalEntry(ctx context.Context, id int) (*JournalEntry, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		entry, err := fetchModelForUpdate[JournalEntry](ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("entry_id = ?", id).Find(&entry.Lines).Error; err != nil {
			return err
		}
		return postJournalEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return GetJournalEntry(ctx, id)
}

// postJournalEntryTx expects entry locked with its lines loaded.
func postJournalEntryTx(ctx context.Context, tx *gorm.DB, entry *JournalEntry) error {
	if entry.Posted {
		return utils.ConflictError("journal entry %d is already posted", entry.ID)
	}
	if len(entry.Lines) < 2 {
		return utils.NewValidationError("journal entry %d has fewer than two lines", entry.ID)
	}
	if !entry.IsBalanced() {
		return utils.NewValidationError("journal entry %d is unbalanced: debits %s, credits %s",
			entry.ID, entry.TotalDebit().StringFixed(2), entry.TotalCredit().StringFixed(2))
	}
	if err := ValidatePeriodOpen(ctx, tx, PeriodModuleGL, entry.Date); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
		"Posted":   true,
		"PostedAt": &now,
	}).Error; err != nil {
		return err
	}
	entry.Posted = true
	entry.PostedAt = &now
	gl := GeneralLedger{
		JournalEntryId: entry.ID,
		SubmittedDate:  entry.Date,
		CurrencyCode:   entry.CurrencyCode,
		TotalDebit:     entry.TotalDebit(),
		TotalCredit:    entry.TotalCredit(),
	}
	return tx.WithContext(ctx).Create(&gl).Error
}

// reverseJournalEntryTx posts a mirror entry dated date. The original stays posted.
func reverseJournalEntryTx(ctx context.Context, tx *gorm.DB, original *JournalEntry, date time.Time, memo string) (*JournalEntry, error) {
	lines := make([]JournalLine, 0, len(original.Lines))
	for _, l := range original.Lines {
		t := EntryTypeDebit
		if l.Type == EntryTypeDebit {
			t = EntryTypeCredit
		}
		lines = append(lines, JournalLine{Amount: l.Amount, Type: t, CombinationId: l.CombinationId, Description: l.Description})
	}
	origId := original.ID
	rev := &JournalEntry{
		Date:         utils.DateOnly(date),
		CurrencyCode: original.CurrencyCode,
		Memo:         memo,
		SourceType:   original.SourceType,
		SourceId:     original.SourceId,
		ReversalOfId: &origId,
		Lines:        lines,
	}
	if err := createJournalEntryTx(ctx, tx, rev); err != nil {
		return nil, err
	}
	if err := postJournalEntryTx(ctx, tx, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

