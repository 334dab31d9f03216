package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fpm.go/pkg/fpm"
)

func TestBridgeMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewBridgeMetrics(reg)

	m.ObserveRequest("mqtt", fpm.CmdQueryUserCount)
	m.ObserveRequest("mqtt", fpm.CmdQueryUserCount)
	ok := fpm.Encode(fpm.CmdQueryUserCount, 0, 1, fpm.AckSuccess)
	m.ObserveReply(fpm.CmdQueryUserCount, ok[:], 10*time.Millisecond)
	m.ObserveReply(fpm.CmdQueryUserCount, []byte{0xf5}, time.Second)
	m.ObserveRejected("ws")
	m.ObserveTransportError()

	require.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("mqtt", "0x09")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x09", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x09", "malformed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTotal.WithLabelValues("ws")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TransportErrors))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "fpm_bridge_round_trip_seconds_count 2"))
}

func TestBridgeMetricsPermissionReplies(t *testing.T) {
	m := NewBridgeMetrics(NewRegistry())
	observe := func(cmd, status byte) {
		reply := fpm.Encode(cmd, 0, 7, status)
		m.ObserveReply(cmd, reply[:], time.Millisecond)
	}
	observe(fpm.CmdVerifyOneToMany, 1)
	observe(fpm.CmdVerifyOneToMany, fpm.AckSuccess)
	observe(fpm.CmdVerifyOneToMany, fpm.AckNoUser)
	observe(fpm.CmdVerifyOneToMany, fpm.AckTimeout)
	observe(fpm.CmdQueryPermission, fpm.AckTimeout)
	observe(fpm.CmdQueryPermission, fpm.AckNoUser)

	require.Equal(t, 2.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0c", "match")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0c", "no-user")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0c", "timeout")))
	require.Zero(t, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0c", "fail")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0a", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("0x0a", "no-user")))
}
