package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"87001234567", "+77001234567"},
		{"8 (700) 123-45-67", "+77001234567"},
		{"77001234567", "+77001234567"},
		{"+7 700 123 45 67", "+77001234567"},
		{"7001234567", "+77001234567"},
		{"+49 171 1234567", "+491711234567"},
		{"no digits", "no digits"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizePhone(tc.raw), "raw %q", tc.raw)
	}
}
