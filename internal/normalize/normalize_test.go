package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Fantasy", "fantasy"},
		{"  fantasy ", "fantasy"},
		{"Epic   Fantasy", "epic fantasy"},
		{"\tUrsula K. LE GUIN\n", "ursula k. le guin"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Value(tc.in), "input %q", tc.in)
	}
}
