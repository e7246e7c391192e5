package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func journalLine(amount string, t EntryType, comb int) JournalLine {
	return JournalLine{Amount: decimal.RequireFromString(amount), Type: t, CombinationId: comb}
}

func TestJournalEntryTotals(t *testing.T) {
	e := JournalEntry{Lines: []JournalLine{
		journalLine("100.50", EntryTypeDebit, 1),
		journalLine("20", EntryTypeDebit, 2),
		journalLine("120.50", EntryTypeCredit, 3),
	}}
	if got := e.TotalDebit().String(); got != "120.5" {
		t.Fatalf("TotalDebit = %s", got)
	}
	if !e.IsBalanced() {
		t.Fatalf("expected balanced entry, difference %s", e.Difference())
	}

	e.Lines = append(e.Lines, journalLine("0.01", EntryTypeCredit, 3))
	if e.IsBalanced() {
		t.Fatalf("expected unbalanced entry")
	}
	if got := e.Difference().String(); got != "-0.01" {
		t.Fatalf("Difference = %s", got)
	}
}

func TestValidateJournalLines(t *testing.T) {
	cases := []struct {
		name  string
		lines []JournalLine
		ok    bool
	}{
		{"single line", []JournalLine{journalLine("1", EntryTypeDebit, 1)}, false},
		{"zero amount", []JournalLine{journalLine("0", EntryTypeDebit, 1), journalLine("1", EntryTypeCredit, 1)}, false},
		{"negative amount", []JournalLine{journalLine("-1", EntryTypeDebit, 1), journalLine("1", EntryTypeCredit, 1)}, false},
		{"no combination", []JournalLine{journalLine("1", EntryTypeDebit, 0), journalLine("1", EntryTypeCredit, 1)}, false},
		{"bad type", []JournalLine{journalLine("1", "SIDEWAYS", 1), journalLine("1", EntryTypeCredit, 1)}, false},
		{"valid", []JournalLine{journalLine("1", EntryTypeDebit, 1), journalLine("1", EntryTypeCredit, 2)}, true},
	}
	for _, tc := range cases {
		err := validateJournalLines(tc.lines)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err = %v", tc.name, err)
		}
	}
}

func TestLedgerFilterValidate(t *testing.T) {
	two := []SegmentPair{{SegmentTypeId: 1, Code: "100"}, {SegmentTypeId: 2, Code: "200"}}
	if err := (LedgerFilter{Mode: SegmentFilterOne, Segments: two}).validate(); err == nil {
		t.Fatalf("mode one with two segments should fail")
	}
	if err := (LedgerFilter{Mode: SegmentFilterAll, Segments: two}).validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := (LedgerFilter{Mode: "some", Segments: two}).validate(); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
