package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "provider manual", "provider manual"},
		{"nul bytes", "pro\x00vider", "provider"},
		{"control chars", "a\x01b\x1fc", "abc"},
		{"keeps newline tab cr", "a\nb\tc\rd", "a\nb\tc\rd"},
		{"unicode untouched", "règle ñ 規則", "règle ñ 規則"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}
