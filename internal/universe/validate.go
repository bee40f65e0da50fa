package universe

import (
	"fmt"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidationError 검증 실패 (로드 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks keys are unique and well-formed and every universe has
// at least one distinct ticker
func Validate(c *Catalogue) error {
	if len(c.Universes) == 0 {
		return ValidationError{"universes", "at least one universe required"}
	}

	seen := make(map[string]bool, len(c.Universes))
	for i, u := range c.Universes {
		field := fmt.Sprintf("universes[%d]", i)
		if !keyPattern.MatchString(u.Key) {
			return ValidationError{field + ".key", fmt.Sprintf("%q must match %s", u.Key, keyPattern)}
		}
		if seen[u.Key] {
			return ValidationError{field + ".key", fmt.Sprintf("duplicate key %q", u.Key)}
		}
		seen[u.Key] = true

		if len(u.Tickers) == 0 {
			return ValidationError{field + ".tickers", "must not be empty"}
		}
		tickers := make(map[string]bool, len(u.Tickers))
		for j, t := range u.Tickers {
			if strings.TrimSpace(t) == "" {
				return ValidationError{fmt.Sprintf("%s.tickers[%d]", field, j), "empty ticker"}
			}
			if tickers[t] {
				return ValidationError{fmt.Sprintf("%s.tickers[%d]", field, j), fmt.Sprintf("duplicate ticker %s", t)}
			}
			tickers[t] = true
		}
	}
	return nil
}
