package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/fpm.go/pkg/fpm"
)

func newTestClient() (*Sensor, *fpm.Client) {
	s := NewSensor()
	c := fpm.NewClient(s)
	c.SettleDelay = 0
	return s, c
}

func enroll(t *testing.T, c *fpm.Client, uid fpm.UserID, perm fpm.Permission) []fpm.Outcome {
	outcomes, err := c.Enroll(context.Background(), uid, perm, nil)
	require.NoError(t, err)
	return outcomes
}

func requireKind(t *testing.T, kind fpm.Kind, outcome fpm.Outcome, err error) {
	require.NoError(t, err)
	require.Equal(t, kind, outcome.Kind)
}

func TestSensorEnrollAndVerify(t *testing.T) {
	s, c := newTestClient()
	s.PlaceFinger(1)
	for _, outcome := range enroll(t, c, 42, 2) {
		require.True(t, outcome.OK())
	}
	require.Equal(t, 1, s.UserCount())

	m, err := c.VerifyOneToMany()
	require.NoError(t, err)
	require.True(t, m.Matched())
	require.Equal(t, fpm.UserID(42), m.UserID)
	require.Equal(t, fpm.Permission(2), m.Permission)

	outcome, err := c.VerifyOneToOne(42)
	requireKind(t, fpm.KindSuccess, outcome, err)

	perm, outcome, err := c.QueryPermission(42)
	requireKind(t, fpm.KindSuccess, outcome, err)
	require.Equal(t, fpm.Permission(2), perm)

	s.PlaceFinger(2)
	m, err = c.VerifyOneToMany()
	require.NoError(t, err)
	require.False(t, m.Matched())
	require.Equal(t, fpm.KindNoUser, m.Outcome.Kind)

	outcome, err = c.VerifyOneToOne(42)
	requireKind(t, fpm.KindFail, outcome, err)

	s.PlaceFinger(0)
	m, err = c.VerifyOneToMany()
	require.NoError(t, err)
	require.Equal(t, fpm.KindTimeout, m.Outcome.Kind)
}

func TestSensorEnrollConflicts(t *testing.T) {
	s, c := newTestClient()
	s.AddUser(1, 1, 1)

	s.PlaceFinger(2)
	outcome, err := c.EnrollStep(1, 1, 1)
	requireKind(t, fpm.KindUserOccupied, outcome, err)

	s.PlaceFinger(1)
	outcome, err = c.EnrollStep(2, 1, 1)
	requireKind(t, fpm.KindFingerOccupied, outcome, err)

	s.PlaceFinger(0)
	outcome, err = c.EnrollStep(2, 1, 1)
	requireKind(t, fpm.KindTimeout, outcome, err)

	s.PlaceFinger(3)
	outcome, err = c.EnrollStep(3, 1, 2)
	requireKind(t, fpm.KindFail, outcome, err)

	outcome, err = c.EnrollStep(0x1000, 1, 1)
	requireKind(t, fpm.KindFail, outcome, err)

	outcome, err = c.EnrollStep(3, 1, 1)
	requireKind(t, fpm.KindSuccess, outcome, err)
	s.PlaceFinger(4)
	outcome, err = c.EnrollStep(3, 1, 2)
	requireKind(t, fpm.KindFail, outcome, err)
	require.Equal(t, 1, s.UserCount())
}

func TestSensorDatabaseFull(t *testing.T) {
	s, c := newTestClient()
	s.Capacity = 1
	s.AddUser(1, 1, 1)
	s.PlaceFinger(2)
	outcome, err := c.EnrollStep(2, 1, 1)
	requireKind(t, fpm.KindDatabaseFull, outcome, err)
}

func TestSensorCountAndDelete(t *testing.T) {
	s, c := newTestClient()
	for i := 1; i <= 5; i++ {
		s.AddUser(fpm.UserID(i), 1, i)
	}
	count, outcome, err := c.QueryUserCount()
	requireKind(t, fpm.KindSuccess, outcome, err)
	require.Equal(t, 5, count)

	outcome, err = c.DeleteUser(3)
	requireKind(t, fpm.KindSuccess, outcome, err)
	outcome, err = c.DeleteUser(3)
	requireKind(t, fpm.KindNoUser, outcome, err)
	_, outcome, err = c.QueryPermission(3)
	requireKind(t, fpm.KindNoUser, outcome, err)

	for i := 0; i < 2; i++ {
		outcome, err = c.DeleteAllUsers()
		requireKind(t, fpm.KindSuccess, outcome, err)
	}
	count, _, err = c.QueryUserCount()
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, 7, s.Frames())
}

func TestSensorFaults(t *testing.T) {
	s, c := newTestClient()
	s.DropNextReply()
	outcome, err := c.DeleteAllUsers()
	requireKind(t, fpm.KindMalformed, outcome, err)

	s.CorruptNextReply()
	outcome, err = c.DeleteAllUsers()
	requireKind(t, fpm.KindMalformed, outcome, err)

	outcome, err = c.DeleteAllUsers()
	requireKind(t, fpm.KindSuccess, outcome, err)
}

func TestSensorBadRequests(t *testing.T) {
	s, c := newTestClient()
	resp, err := c.Exchange(fpm.Request{Command: 0x42})
	require.NoError(t, err)
	require.Equal(t, fpm.AckFail, resp.Status())

	frame := fpm.Encode(fpm.CmdDeleteAllUsers, 0, 0, 0)
	frame[6] ^= 0xff
	raw, err := c.RoundTrip(append([]byte{0x00, 0x13}, frame[:]...))
	require.NoError(t, err)
	resp, err = fpm.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, fpm.AckFail, resp.Status())
	require.Equal(t, 2, s.Frames())
}
