package auth

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, country, want string
		wantErr           bool
	}{
		{"08123456789", "62", "+628123456789", false},
		{"8123456789", "62", "+628123456789", false},
		{"+1 (415) 555-0100", "62", "+14155550100", false},
		{"0412 345 678", "61", "+61412345678", false},
		{"0812", "", "", true},
		{"", "62", "", true},
		{"+0123456789", "62", "", true},
		{"abc", "62", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in, tt.country)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizePhone(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidCode(t *testing.T) {
	tests := map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"":        false,
	}
	for code, want := range tests {
		if got := ValidCode(code); got != want {
			t.Errorf("ValidCode(%q) = %v, want %v", code, got, want)
		}
	}
}
