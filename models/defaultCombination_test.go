package models

import (
	"reflect"
	"testing"

	"github.com/mmdatafocus/erp_backend/utils"
)

func TestMissingRequiredTypes(t *testing.T) {
	types := []*SegmentType{
		{ID: 1, SegmentName: "entity", IsRequired: true},
		{ID: 2, SegmentName: "account", IsRequired: true},
		{ID: 3, SegmentName: "project", IsRequired: false},
		{ID: 4, SegmentName: "branch", IsRequired: true, IsActive: utils.NewFalse()},
	}
	got := missingRequiredTypes(types, map[int]bool{1: true})
	if !reflect.DeepEqual(got, []string{"account"}) {
		t.Fatalf("missing = %v", got)
	}
	got = missingRequiredTypes(types, map[int]bool{})
	if !reflect.DeepEqual(got, []string{"account", "entity"}) {
		t.Fatalf("missing = %v", got)
	}
	if got := missingRequiredTypes(types, map[int]bool{1: true, 2: true}); len(got) != 0 {
		t.Fatalf("expected none missing, got %v", got)
	}
}
