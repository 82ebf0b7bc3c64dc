package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCountryCode is prefixed onto numbers entered without a leading "+".
const DefaultCountryCode = "62"

// ErrInvalidPhone is returned for input that cannot be read as a phone number.
var ErrInvalidPhone = errors.New("invalid phone number")

var (
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	e164Re          = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
	codeRe          = regexp.MustCompile(`^[0-9]{6}$`)
)

// NormalizePhone converts user input to E.164. Input without a leading "+" is
// a national number: one leading zero is dropped and countryCode is prefixed.
func NormalizePhone(raw, countryCode string) (string, error) {
	s := phoneSeparators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	if !strings.HasPrefix(s, "+") {
		if countryCode == "" {
			countryCode = DefaultCountryCode
		}
		s = "+" + strings.TrimPrefix(countryCode, "+") + strings.TrimPrefix(s, "0")
	}
	if !e164Re.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return s, nil
}

// ValidCode reports whether code has the accepted verification code format.
func ValidCode(code string) bool {
	return codeRe.MatchString(code)
}
