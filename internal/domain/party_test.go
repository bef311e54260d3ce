package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidAlias(t *testing.T) {
	testCases := []struct {
		name  string
		alias string
		want  error
	}{
		{"plain", "ada", nil},
		{"empty", "", ErrAliasEmpty},
		{"at limit", strings.Repeat("x", MaxAliasLen), nil},
		{"over limit", strings.Repeat("x", MaxAliasLen+1), ErrAliasTooLong},
		// Multibyte names count runes, not bytes: 36 three-byte runes are
		// 108 bytes but still a legal alias.
		{"multibyte at limit", strings.Repeat("独", MaxAliasLen), nil},
		{"multibyte over limit", strings.Repeat("独", MaxAliasLen+1), ErrAliasTooLong},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidAlias(tc.alias); !errors.Is(got, tc.want) {
				t.Fatalf("ValidAlias(%q) = %v, want %v", tc.alias, got, tc.want)
			}
		})
	}
}
