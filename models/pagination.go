package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// PageInfo accompanies keyset-paginated lists. EndCursor is passed back as
// the next request's after cursor.
type PageInfo struct {
	EndCursor   string `json:"end_cursor"`
	HasNextPage bool   `json:"has_next_page"`
}

// Cursor is implemented by rows listed newest first by date then id.
type Cursor interface {
	CursorDate() time.Time
	GetId() int
}

func EncodeCompositeCursor(date time.Time, id int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s|%d", date.Format(time.DateOnly), id)))
}

func DecodeCompositeCursor(cursor string) (time.Time, int, error) {
	invalid := utils.NewValidationError("invalid cursor")
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, invalid
	}
	parts := strings.Split(string(b), "|")
	if len(parts) != 2 {
		return time.Time{}, 0, invalid
	}
	date, err := time.Parse(time.DateOnly, parts[0])
	if err != nil {
		return time.Time{}, 0, invalid
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, 0, invalid
	}
	return date, id, nil
}

// afterCursor restricts a date DESC, id DESC query to rows past cursor.
func afterCursor(q *gorm.DB, cursor *string, dateColumn string) (*gorm.DB, error) {
	if cursor == nil || *cursor == "" {
		return q, nil
	}
	date, id, err := DecodeCompositeCursor(*cursor)
	if err != nil {
		return nil, err
	}
	return q.Where(fmt.Sprintf("(%[1]s < ? OR (%[1]s = ? AND id < ?))", dateColumn), date, date, id), nil
}

// Page trims a limit+1 result to limit and reports whether more rows exist.
func Page[T Cursor](rows []T, limit int) ([]T, PageInfo) {
	var info PageInfo
	if len(rows) > limit {
		rows = rows[:limit]
		info.HasNextPage = true
	}
	if n := len(rows); n > 0 {
		last := rows[n-1]
		info.EndCursor = EncodeCompositeCursor(last.CursorDate(), last.GetId())
	}
	return rows, info
}

func (e *JournalEntry) CursorDate() time.Time  { return e.Date }
func (e *JournalEntry) GetId() int             { return e.ID }
func (g *GeneralLedger) CursorDate() time.Time { return g.SubmittedDate }
func (g *GeneralLedger) GetId() int            { return g.ID }
