// Package bridge shares one fingerprint module with remote hosts.
//
// Request frames arriving from any endpoint are forwarded to the module
// one at a time and the raw reply is sent back unchanged. The bridge
// doesn't interpret replies beyond counting outcomes.
package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fpm.go/pkg/fpm"
	"github.com/robotalks/fpm.go/pkg/metrics"
)

// ErrBadRequest indicates a request which is not a valid frame.
var ErrBadRequest = errors.New("bad request frame")

// Bridge serializes access to a fingerprint module.
type Bridge struct {
	ID      string
	Client  *fpm.Client
	Metrics *metrics.BridgeMetrics

	lock sync.Mutex
}

// New creates a Bridge.
func New(id string, client *fpm.Client) *Bridge {
	return &Bridge{ID: id, Client: client}
}

// WithMetrics enables metrics.
func (b *Bridge) WithMetrics(m *metrics.BridgeMetrics) *Bridge {
	b.Metrics = m
	return b
}

// ValidateRequest checks markers and checksum of a request frame.
func ValidateRequest(frame []byte) error {
	req, err := fpm.Decode(frame)
	if err != nil || !req.ChecksumOK() {
		return ErrBadRequest
	}
	return nil
}

// Forward sends a request frame from endpoint to the module and returns the
// reply as read. A reply shorter than a frame means the module didn't
// answer in time.
func (b *Bridge) Forward(endpoint string, frame []byte) ([]byte, error) {
	if err := ValidateRequest(frame); err != nil {
		glog.Warningf("%s: rejected request % X", endpoint, frame)
		if b.Metrics != nil {
			b.Metrics.ObserveRejected(endpoint)
		}
		return nil, err
	}
	cmd := frame[1]
	if b.Metrics != nil {
		b.Metrics.ObserveRequest(endpoint, cmd)
	}

	b.lock.Lock()
	start := time.Now()
	reply, err := b.Client.RoundTrip(frame)
	elapsed := time.Since(start)
	b.lock.Unlock()

	if err != nil {
		glog.Errorf("%s: command 0x%02X: %v", endpoint, cmd, err)
		if b.Metrics != nil {
			b.Metrics.ObserveTransportError()
		}
		return nil, err
	}
	glog.V(1).Infof("%s: command 0x%02X -> % X (%v)", endpoint, cmd, reply, elapsed)
	if b.Metrics != nil {
		b.Metrics.ObserveReply(cmd, reply, elapsed)
	}
	return reply, nil
}
