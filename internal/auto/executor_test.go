package auto

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "ok\n", want: "ok\n"},
		{name: "exact", in: strings.Repeat("a", outputTail), want: strings.Repeat("a", outputTail)},
		{name: "ascii", in: "b" + strings.Repeat("a", outputTail), want: "..." + strings.Repeat("a", outputTail)},
		{
			name: "two-byte rune split",
			in:   strings.Repeat("é", 1000) + "x",
			want: "..." + strings.Repeat("é", 999) + "x",
		},
		{
			name: "three-byte rune split",
			in:   strings.Repeat("€", 700),
			want: "..." + strings.Repeat("€", 666),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tail(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
