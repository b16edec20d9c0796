package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ikonrealty/closingdesk/model"
)

var (
	unsafeAddressChars = regexp.MustCompile(`[^a-zA-Z0-9 .-]`)
	nonDigits          = regexp.MustCompile(`\D`)
)

// MinSearchLength is the shortest query forwarded to the geocoder
const MinSearchLength = 4

// ShouldSearch reports whether a free-text query is long enough to geocode
func ShouldSearch(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) >= MinSearchLength
}

// SanitizeAddressPart strips characters outside [a-zA-Z0-9 .-] and collapses whitespace
func SanitizeAddressPart(s string) string {
	s = unsafeAddressChars.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// SelectAddress turns a geocoder candidate into an Address or rejects it.
func SelectAddress(c model.GeocodeCandidate) (model.Address, error) {
	state := model.State(strings.ToUpper(strings.TrimSpace(c.State)))
	if !state.IsLicensed() {
		return model.Address{}, &model.ValidationError{
			Code:    model.CodeUnlicensedState,
			Field:   "state",
			Message: "only VA, MD, DC addresses are allowed",
		}
	}

	streetNumber := nonDigits.ReplaceAllString(c.StreetNumber, "")
	if streetNumber == "" {
		return model.Address{}, &model.ValidationError{
			Code:    model.CodeMissingStreetNumber,
			Field:   "streetNumber",
			Message: "street number is required",
		}
	}

	streetName := SanitizeAddressPart(c.StreetName)
	if streetName == "" {
		return model.Address{}, &model.ValidationError{
			Code:    model.CodeMissingStreetName,
			Field:   "streetName",
			Message: "street name is required",
		}
	}

	return model.Address{
		StreetNumber: streetNumber,
		StreetName:   streetName,
		City:         SanitizeAddressPart(c.City),
		State:        state,
		Zip:          strings.TrimSpace(c.Zip),
	}, nil
}

// SelectableAddresses keeps only the candidates that pass SelectAddress
func SelectableAddresses(candidates []model.GeocodeCandidate) []model.Address {
	out := make([]model.Address, 0, len(candidates))
	for _, c := range candidates {
		if a, err := SelectAddress(c); err == nil {
			out = append(out, a)
		}
	}
	return out
}
