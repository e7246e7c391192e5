package utils

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// ValidatePhoneNumber checks phone against the numbering plan of country
// (ISO 3166 alpha-2) and returns it in E.164 form. Empty phones are allowed.
func ValidatePhoneNumber(phone string, country string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	region := strings.ToUpper(strings.TrimSpace(country))
	num, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return "", NewFieldValidationError("invalid phone number", map[string]string{"phone": err.Error()})
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", NewFieldValidationError("invalid phone number", map[string]string{"phone": "invalid"})
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
