package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic normalization
		{"lowercase", "DUNE", "dune"},
		{"spaces to hyphens", "The Great Escape", "the-great-escape"},
		{"underscores to hyphens", "great_escape", "great-escape"},
		{"already normalized", "the-great-escape", "the-great-escape"},

		// Whitespace handling
		{"trim whitespace", "  Dune  ", "dune"},
		{"multiple spaces", "multi   word", "multi-word"},
		{"tabs and newlines", "multi\tword\nhere", "multi-word-here"},

		// Special characters
		{"accents folded", "Déjà Vu: A Tale!", "deja-vu-a-tale"},
		{"punctuation removed", "Don't Panic!", "dont-panic"},
		{"emoji removed", "🐉 Dragons!", "dragons"},
		{"digits kept", "Fahrenheit 451", "fahrenheit-451"},

		// Hyphen handling
		{"multiple hyphens collapsed", "slow--burn", "slow-burn"},
		{"leading hyphens trimmed", "--dune", "dune"},
		{"trailing hyphens trimmed", "dune--", "dune"},

		// Edge cases
		{"empty string", "", ""},
		{"only spaces", "   ", ""},
		{"only punctuation", "!@#$%", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Make(tt.input))
		})
	}
}

func TestMakeIdempotent(t *testing.T) {
	t.Parallel()

	titles := []string{
		"The Great Escape",
		"Déjà Vu: A Tale!",
		"  multi   word ",
		strings.Repeat("very long title ", 10),
	}

	for _, title := range titles {
		once := Make(title)
		assert.Equal(t, once, Make(once), "re-applying Make should be stable for %q", title)
	}
}

func TestMakeTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcde ", 20)
	s := Make(long)

	assert.LessOrEqual(t, len(s), MaxLength)
	assert.False(t, strings.HasSuffix(s, "-"), "truncation should not leave a trailing hyphen")
	assert.False(t, strings.HasPrefix(s, "-"))
}

func TestMakeASCIIOnly(t *testing.T) {
	t.Parallel()

	s := Make("Déjà Vu: A Tale!")
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		assert.True(t, ok, "unexpected rune %q in slug %q", r, s)
	}
}
