package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"}, DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}))
	assert.Empty(t, DedupeAndTrim(nil))
}

func TestNormalizeCodes(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"mixed case duplicates", []string{" de", "FR", "De", ""}, []string{"DE", "FR"}},
		{"sorted output", []string{"it", "at", "de"}, []string{"AT", "DE", "IT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCodes(tt.in))
		})
	}
}
