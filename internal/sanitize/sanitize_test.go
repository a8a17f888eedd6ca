package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "tags removed",
			input:    "  <b>Engineering</b> graphics kit<script>alert(1)</script> ",
			expected: "Engineering graphics kit",
		},
		{
			name:     "truncated",
			input:    "calculator",
			max:      4,
			expected: "calc",
		},
		{
			name:     "special characters kept as typed",
			input:    `price < 500 & it's "new"?`,
			expected: `price < 500 & it's "new"?`,
		},
		{
			name:     "truncated by character",
			input:    "ééé",
			max:      2,
			expected: "éé",
		},
		{
			name:     "multi-byte character at the limit",
			input:    strings.Repeat("a", 1999) + "é",
			max:      2000,
			expected: strings.Repeat("a", 1999) + "é",
		},
		{
			name:     "plain text untouched",
			input:    "lab coat, size M",
			expected: "lab coat, size M",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Strip(tt.input, tt.max)
			assert.Equal(t, tt.expected, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestRichText(t *testing.T) {
	got, err := RichText(`<p>Barely used</p><script>alert(1)</script>`)
	require.NoError(t, err)

	assert.Contains(t, got, "<p>Barely used</p>")
	assert.NotContains(t, got, "script")
}

func TestProfane(t *testing.T) {
	assert.True(t, Profane("clean title", "f u c k it"))
	assert.False(t, Profane("Scientific calculator", "works fine"))
}
