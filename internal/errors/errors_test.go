package errors

import (
	"fmt"
	"testing"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		malformed   bool
		validation  bool
		persistence bool
	}{
		{"not found", NewNotFound("uptime", "ABCD"), true, false, false, false},
		{"malformed", NewMalformed("value", "x", "not a number"), false, true, false, false},
		{"interval", fmt.Errorf("line 3: %w", ErrInvalidInterval), false, true, false, false},
		{"validation", NewValidation("tiers", "unsorted"), false, false, true, false},
		{"missing", NewMissingField("data_dir"), false, false, true, false},
		{"store", NewStoreFailure("store", "uptime", "ABCD", New("disk full")), false, false, false, true},
		{"journal", Wrap(ErrJournalCorrupt, "segment 7"), false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsMalformed(tt.err); got != tt.malformed {
				t.Errorf("IsMalformed = %v, want %v", got, tt.malformed)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation = %v, want %v", got, tt.validation)
			}
			if got := IsPersistence(tt.err); got != tt.persistence {
				t.Errorf("IsPersistence = %v, want %v", got, tt.persistence)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddField("render.value_ceiling", "must be positive")
	v.AddMissing("data_dir")
	v.Add(nil)

	if len(v.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(v.Errors))
	}

	err := v.Err()
	if !Is(err, ErrInvalidConfig) {
		t.Error("joined error should match ErrInvalidConfig")
	}
	if !Is(err, ErrMissingField) {
		t.Error("joined error should match ErrMissingField")
	}
}
