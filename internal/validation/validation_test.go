package validation

import (
	"strings"
	"testing"
)

func TestValidateEntity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"fingerprint", "9695DFC35FFEB861329B9F1AB04C46397020CE31", false},
		{"network", "network", false},
		{"with hyphen", "relay-1", false},
		{"with underscore", "relay_1", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"hidden", ".hidden", true},
		{"slash", "uptime/relay", true},
		{"traversal", "../etc", true},
		{"backslash", "a\\b", true},
		{"space", "a b", true},
		{"control char", "a\x00b", true},
		{"with dot", "relay.1", true},
		{"too long", strings.Repeat("A", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntity(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEntity(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNameWithDots(t *testing.T) {
	rules := DefaultNameRules()
	rules.AllowDots = true

	if err := ValidateName("relay.1", rules); err != nil {
		t.Errorf("ValidateName with dots: %v", err)
	}
	if err := ValidateName(".relay", rules); err == nil {
		t.Error("leading dot must stay invalid")
	}
}

func TestParseRecordRef(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFamily string
		wantEntity string
		wantErr    bool
	}{
		{"simple", "uptime/network", "uptime", "network", false},
		{"fingerprint", "read/9695DFC35FFEB861329B9F1AB04C46397020CE31", "read", "9695DFC35FFEB861329B9F1AB04C46397020CE31", false},
		{"spaces trimmed", " weights / relay ", "weights", "relay", false},
		{"empty", "", "", "", true},
		{"no separator", "uptime", "", "", true},
		{"empty family", "/relay", "", "", true},
		{"empty entity", "uptime/", "", "", true},
		{"nested", "uptime/a/b", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseRecordRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRecordRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if ref.Family != tt.wantFamily {
				t.Errorf("ParseRecordRef(%q).Family = %q, want %q", tt.input, ref.Family, tt.wantFamily)
			}
			if ref.Entity != tt.wantEntity {
				t.Errorf("ParseRecordRef(%q).Entity = %q, want %q", tt.input, ref.Entity, tt.wantEntity)
			}
			if ref.String() != tt.wantFamily+"/"+tt.wantEntity {
				t.Errorf("String() = %q", ref.String())
			}
		})
	}
}

func BenchmarkParseRecordRef(b *testing.B) {
	ref := "uptime/9695DFC35FFEB861329B9F1AB04C46397020CE31"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseRecordRef(ref)
	}
}
