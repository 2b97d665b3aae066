package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCity_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 1, 100)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
	if ErrCityEmpty.Error() != "City parameter is required" {
		t.Errorf("ErrCityEmpty = %q", ErrCityEmpty.Error())
	}
}

func TestValidateCity_Length(t *testing.T) {
	if _, err := ValidateCity("x", 2, 100); !errors.Is(err, ErrCityTooShort) {
		t.Errorf("short: error = %v, want ErrCityTooShort", err)
	}

	s100 := strings.Repeat("a", 100)
	got, err := ValidateCity(s100, 1, 100)
	if err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if len([]rune(got)) != 100 {
		t.Errorf("max boundary: rune count = %d, want 100", len([]rune(got)))
	}
	if _, err := ValidateCity(s100+"a", 1, 100); !errors.Is(err, ErrCityTooLong) {
		t.Errorf("over max: err = %v, want ErrCityTooLong", err)
	}
	if _, err := ValidateCity(strings.Repeat("ü", 100), 1, 100); err != nil {
		t.Errorf("length counts runes, not bytes: err = %v", err)
	}
}

func TestValidateCity_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"nul", "par\x00is"},
		{"bell", "par\ais"},
		{"newline inside", "par\nis"},
		{"tab inside", "par\tis"},
		{"delete", "par\x7fis"},
		{"invalid utf-8", "par\xffis"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateCity(tc.input, 1, 100); !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "London", "London"},
		{"with space", "New York", "New York"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Stratford-upon-Avon", "Stratford-upon-Avon"},
		{"apostrophe and period", "St. John's", "St. John's"},
		{"trimmed", "  Paris  ", "Paris"},
		{"unicode", "Zürich", "Zürich"},
		{"case kept", "tOKyo", "tOKyo"},
		{"parentheses", "Halle (Saale)", "Halle (Saale)"},
		{"slash", "Biel/Bienne", "Biel/Bienne"},
		{"ampersand", "Trinidad & Tobago", "Trinidad & Tobago"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCity(tc.input, 1, 100)
			if err != nil {
				t.Fatalf("ValidateCity() err = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		raw     string
		def     int
		want    int
		wantErr bool
	}{
		{"", 1, 1, false},
		{"3", 1, 3, false},
		{" 5 ", 1, 5, false},
		{"0", 1, 0, false},
		{"-1", 1, 0, true},
		{"abc", 1, 0, true},
		{"2.5", 1, 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDays(tc.raw, tc.def)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidDays) {
				t.Errorf("ParseDays(%q) error = %v, want ErrInvalidDays", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseDays(%q) = %d, %v; want %d", tc.raw, got, err, tc.want)
		}
	}
}
