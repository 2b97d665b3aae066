package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("City parameter is required")

// ErrCityTooShort is returned when city length is below the minimum.
var ErrCityTooShort = errors.New("city too short")

// ErrCityTooLong is returned when city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when city contains control characters or invalid UTF-8.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrInvalidDays is returned for a day count that is not a non-negative integer.
var ErrInvalidDays = errors.New("days must be a non-negative integer")

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes)
// and rejects control characters. Punctuation such as "Halle (Saale)" is kept;
// the provider client path-escapes the name. The trimmed city keeps its case.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	if !utf8.ValidString(s) {
		return "", ErrCityInvalidChars
	}
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// ParseDays parses a day count query value. Empty input yields def.
func ParseDays(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrInvalidDays
	}
	return n, nil
}
