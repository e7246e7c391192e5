package utils

import (
	"errors"
	"testing"
)

func TestFormatDocumentNumber(t *testing.T) {
	if got := FormatDocumentNumber("RCP", 1); got != "RCP-000001" {
		t.Fatalf("expected RCP-000001, got %s", got)
	}
	if got := FormatDocumentNumber("PMT", 1234567); got != "PMT-1234567" {
		t.Fatalf("expected PMT-1234567, got %s", got)
	}
}

func TestUniqueSlice_KeepsFirstOccurrenceOrder(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestValidateStruct_ReportsJsonFieldNames(t *testing.T) {
	type input struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
	}
	err := ValidateStruct(&input{Email: "nope"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Fields["name"] != "required" {
		t.Fatalf("expected name=required, got %v", ve.Fields)
	}
	if ve.Fields["email"] != "email" {
		t.Fatalf("expected email=email, got %v", ve.Fields)
	}
	if err := ValidateStruct(&input{Name: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	got, err := ValidatePhoneNumber("+1 650-253-0000", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+16502530000" {
		t.Fatalf("expected E.164 form, got %s", got)
	}
	if _, err := ValidatePhoneNumber("12", "US"); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got, err := ValidatePhoneNumber("", "US"); err != nil || got != "" {
		t.Fatalf("empty phone should pass, got %q %v", got, err)
	}
}

func TestConflictError_IsConflict(t *testing.T) {
	err := ConflictError("payment %s is already posted", "PMT-000001")
	if !errors.Is(err, ErrorConflict) {
		t.Fatalf("expected errors.Is conflict")
	}
	if err.Error() != "payment PMT-000001 is already posted" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
