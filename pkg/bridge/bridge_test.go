package bridge

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/fpm.go/pkg/fpm"
	"github.com/robotalks/fpm.go/pkg/metrics"
	"github.com/robotalks/fpm.go/pkg/sim"
	"github.com/robotalks/fpm.go/pkg/transport"
)

func newTestBridge() (*Bridge, *sim.Sensor, *metrics.BridgeMetrics) {
	s := sim.NewSensor()
	m := metrics.NewBridgeMetrics(metrics.NewRegistry())
	return New("test", fpm.NewClient(s)).WithMetrics(m), s, m
}

func TestValidateRequest(t *testing.T) {
	frame := fpm.Encode(fpm.CmdQueryUserCount, 0, 0, 0)
	require.NoError(t, ValidateRequest(frame[:]))

	bad := frame
	bad[6] ^= 1
	require.Equal(t, ErrBadRequest, ValidateRequest(bad[:]))
	require.Equal(t, ErrBadRequest, ValidateRequest(frame[:7]))
	require.Equal(t, ErrBadRequest, ValidateRequest(nil))
}

func TestForward(t *testing.T) {
	b, s, m := newTestBridge()
	s.AddUser(7, 3, 1)

	frame := fpm.Encode(fpm.CmdQueryPermission, 0, 7, 0)
	reply, err := b.Forward("test", frame[:])
	require.NoError(t, err)
	resp, err := fpm.Decode(reply)
	require.NoError(t, err)
	require.Equal(t, byte(3), resp.Status())

	s.DropNextReply()
	reply, err = b.Forward("test", frame[:])
	require.NoError(t, err)
	require.Empty(t, reply)

	_, err = b.Forward("test", []byte{0xf5, 0x09})
	require.Equal(t, ErrBadRequest, err)
	require.Equal(t, 2, s.Frames())

	require.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("test", "0x0a")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0a", "malformed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTotal.WithLabelValues("test")))
}

func TestForwardVerifyMatchMetrics(t *testing.T) {
	b, s, m := newTestBridge()
	s.AddUser(7, 1, 1)
	s.PlaceFinger(1)

	frame := fpm.Encode(fpm.CmdVerifyOneToMany, 0, 0, 0)
	reply, err := b.Forward("test", frame[:])
	require.NoError(t, err)
	resp, err := fpm.Decode(reply)
	require.NoError(t, err)
	require.Equal(t, fpm.UserID(7), resp.UserID())

	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0c", "match")))
	require.Zero(t, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0c", "fail")))
}

func TestWebsocket(t *testing.T) {
	b, s, _ := newTestBridge()
	for i := 1; i <= 3; i++ {
		s.AddUser(fpm.UserID(i), 1, i)
	}
	server := httptest.NewServer(b.WebsocketHandler())
	defer server.Close()

	ws, err := websocket.Dial("ws"+strings.TrimPrefix(server.URL, "http")+WebsocketPath, "", server.URL)
	require.NoError(t, err)
	defer ws.Close()
	ws.PayloadType = websocket.BinaryFrame

	client := fpm.NewClient(ws)
	count, outcome, err := client.QueryUserCount()
	require.NoError(t, err)
	require.True(t, outcome.OK())
	require.Equal(t, 3, count)

	outcome, err = client.DeleteUser(2)
	require.NoError(t, err)
	require.True(t, outcome.OK())
	require.Equal(t, 2, s.UserCount())
}

// slowSensor answers after delay.
type slowSensor struct {
	*sim.Sensor
	delay time.Duration
}

func (s *slowSensor) Read(b []byte) (int, error) {
	time.Sleep(s.delay)
	return s.Sensor.Read(b)
}

func TestWebsocketLateReplyDiscarded(t *testing.T) {
	s := sim.NewSensor()
	s.AddUser(1, 1, 1)
	b := New("test", fpm.NewClient(&slowSensor{Sensor: s, delay: 150 * time.Millisecond}))
	server := httptest.NewServer(b.WebsocketHandler())
	defer server.Close()

	rw, err := transport.Open(transport.Config{Port: "ws" + strings.TrimPrefix(server.URL, "http") + WebsocketPath})
	require.NoError(t, err)
	defer rw.Close()
	client := fpm.NewClient(rw)

	client.Timeout = 100 * time.Millisecond
	_, outcome, err := client.QueryUserCount()
	require.NoError(t, err)
	require.Equal(t, fpm.KindMalformed, outcome.Kind)

	// the reply to the abandoned request (count=1) arrives meanwhile.
	time.Sleep(200 * time.Millisecond)
	s.AddUser(2, 1, 2)

	client.Timeout = time.Second
	count, outcome, err := client.QueryUserCount()
	require.NoError(t, err)
	require.True(t, outcome.OK())
	require.Equal(t, 2, count)
}
