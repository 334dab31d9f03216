package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/fpm.go/pkg/fpm"
)

func TestParseUserID(t *testing.T) {
	testCases := []struct {
		str string
		uid fpm.UserID
		ok  bool
	}{
		{"1", 1, true},
		{"0x0123", 0x123, true},
		{"65535", 0xffff, true},
		{"65536", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.str, func(t *testing.T) {
			uid, err := ParseUserID(tc.str)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.uid, uid)
		})
	}
}

func TestParseByte(t *testing.T) {
	val, err := ParseByte("P1", "0xF5")
	require.NoError(t, err)
	require.Equal(t, byte(0xf5), val)

	_, err = ParseByte("P1", "256")
	require.Error(t, err)
	require.Contains(t, err.Error(), "P1")
}
