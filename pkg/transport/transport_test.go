package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/fpm.go/pkg/fpm"
	"github.com/robotalks/fpm.go/pkg/sim"
)

func TestOpenSim(t *testing.T) {
	rw, err := Open(Config{Port: "sim://?users=3&finger=2"})
	require.NoError(t, err)
	defer rw.Close()
	require.IsType(t, &sim.Sensor{}, rw)

	c := fpm.NewClient(rw)
	count, outcome, err := c.QueryUserCount()
	require.NoError(t, err)
	require.True(t, outcome.OK())
	require.Equal(t, 3, count)

	m, err := c.VerifyOneToMany()
	require.NoError(t, err)
	require.True(t, m.Matched())
	require.Equal(t, fpm.UserID(2), m.UserID)
}

func TestOpenErrors(t *testing.T) {
	for _, port := range []string{
		"foo://bar",
		"sim://?users=x",
		"sim://?users=-1",
		"sim://?finger=y",
		"mqtt://localhost:1883/",
	} {
		t.Run(port, func(t *testing.T) {
			_, err := Open(Config{Port: port})
			require.Error(t, err)
		})
	}
}

func TestReplyTimeout(t *testing.T) {
	testCases := []struct {
		port   string
		remote bool
	}{
		{"/dev/ttyUSB0", false},
		{"COM3", false},
		{"sim://?users=1", false},
		{"mqtt://broker:1883/fpm/b1", true},
		{"ssl://broker:8883/fpm/b1", true},
		{"ws://host:8080/fpm", true},
		{"wss://host/fpm", true},
	}
	for _, tc := range testCases {
		t.Run(tc.port, func(t *testing.T) {
			require.Equal(t, tc.remote, IsRemote(tc.port))
			timeout := ReplyTimeout(tc.port, fpm.DefaultTimeout)
			if tc.remote {
				require.Equal(t, fpm.DefaultTimeout+RemoteMargin, timeout)
				require.True(t, timeout > fpm.DefaultTimeout)
			} else {
				require.Equal(t, fpm.DefaultTimeout, timeout)
			}
		})
	}
}
