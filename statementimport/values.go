package statementimport

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"2006.01.02",
	"02.01.2006",
	"02 Jan 2006",
	"02 January 2006",
}

// ParseDate tries each layout in order. With serial set, a bare number is
// read as an Excel date serial.
func ParseDate(value string, serial bool) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	// datetime cells keep their time part in text form
	if len(value) > 10 {
		if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
			return dateOnly(t), true
		}
	}
	if serial {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			if t, err := excelize.ExcelDateToTime(f, false); err == nil {
				return dateOnly(t), true
			}
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
