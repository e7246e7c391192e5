package models

import (
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(start int, end *int) EffectivePeriod {
	p := EffectivePeriod{EffectiveStartDate: day(start)}
	if end != nil {
		e := day(*end)
		p.EffectiveEndDate = &e
	}
	return p
}

func intp(v int) *int { return &v }

func TestEffectivePeriodActiveOn(t *testing.T) {
	open := window(10, nil)
	assert.False(t, open.ActiveOn(day(9)))
	assert.True(t, open.ActiveOn(day(10)))
	assert.True(t, open.ActiveOn(day(31)))

	closed := window(10, intp(20))
	assert.True(t, closed.ActiveOn(day(20).Add(15*time.Hour)))
	assert.False(t, closed.ActiveOn(day(21)))
}

func TestEffectivePeriodOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b EffectivePeriod
		want bool
	}{
		{"adjacent", window(1, intp(9)), window(10, nil), false},
		{"shared end day", window(1, intp(10)), window(10, intp(12)), true},
		{"both open", window(1, nil), window(20, nil), true},
		{"contained", window(1, intp(30)), window(5, intp(6)), true},
		{"later closed", window(15, intp(20)), window(1, intp(14)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a))
		})
	}
}

func TestEffectivePeriodValidate(t *testing.T) {
	require.NoError(t, window(5, intp(5)).validate())
	err := window(5, intp(4)).validate()
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))
	assert.Error(t, EffectivePeriod{}.validate())
}

func TestDeactivationDate(t *testing.T) {
	p := window(10, nil)
	now := day(20).Add(8 * time.Hour)
	assert.Equal(t, day(19), p.deactivationDate(nil, now))

	end := day(15)
	assert.Equal(t, day(15), p.deactivationDate(&end, now))

	early := day(3)
	assert.Equal(t, day(10), p.deactivationDate(&early, now))

	assert.Equal(t, day(10), p.deactivationDate(nil, day(10)))
}

func TestPersonNormalize(t *testing.T) {
	p := Person{FirstName: "Aye", LastName: "Chan", Email: " Aye@Example.COM ", Phone: "(650) 253-0000", Country: "us"}
	require.NoError(t, p.normalize())
	assert.Equal(t, "+16502530000", p.Phone)
	assert.Equal(t, "US", p.Country)
	assert.Equal(t, "aye@example.com", p.Email)
	assert.Equal(t, "Aye Chan", p.FullName())

	noCountry := Person{Phone: "6502530000"}
	assert.Error(t, noCountry.normalize())

	bad := Person{Phone: "12", Country: "US"}
	assert.Error(t, bad.normalize())

	dob, hire := day(20), day(10)
	young := Person{DateOfBirth: &dob, HireDate: &hire}
	assert.Error(t, young.normalize())
}
