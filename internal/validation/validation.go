// Package validation checks entity names and record references before
// they reach a store, where an entity name may become a file name.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for entity names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// DefaultNameRules returns the rules for entity names: relay
// fingerprints, hashed bridge fingerprints and the network aggregate.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateEntity validates an entity name with default rules.
func ValidateEntity(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// =============================================================================
// Record References
// =============================================================================

// RecordRef is a parsed "family/entity" record reference.
type RecordRef struct {
	Family string
	Entity string
}

// ParseRecordRef parses a "family/entity" reference. The family name is
// not checked here.
func ParseRecordRef(ref string) (*RecordRef, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty record reference")
	}

	family, entity, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, fmt.Errorf("invalid record reference format: expected 'family/entity', got '%s'", ref)
	}

	family = strings.TrimSpace(family)
	entity = strings.TrimSpace(entity)

	if family == "" {
		return nil, fmt.Errorf("invalid record reference: empty family in '%s'", ref)
	}
	if err := ValidateEntity(entity); err != nil {
		return nil, fmt.Errorf("invalid entity in record reference: %w", err)
	}

	return &RecordRef{
		Family: family,
		Entity: entity,
	}, nil
}

// String returns the string representation of the record reference.
func (r *RecordRef) String() string {
	return r.Family + "/" + r.Entity
}
