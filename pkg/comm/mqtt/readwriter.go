package mqtt

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Topics used by a bridge with ID <id>, relative to the queue prefix:
//
//	<id>/meta              retained BridgeInfo JSON, empty when offline
//	<id>/cmd/<session>     request frames from a host session
//	<id>/reply/<session>   reply frames to the session
const (
	metaTopic  = "meta"
	cmdTopic   = "cmd"
	replyTopic = "reply"
)

// MetaTopic returns the meta topic of a bridge.
func MetaTopic(id string) string {
	return id + "/" + metaTopic
}

// CmdTopic returns the topic a session sends requests to.
func CmdTopic(id, session string) string {
	return id + "/" + cmdTopic + "/" + session
}

// ReplyTopic returns the topic a session receives replies on.
func ReplyTopic(id, session string) string {
	return id + "/" + replyTopic + "/" + session
}

// SessionFromCmdTopic extracts the session from a request topic.
func SessionFromCmdTopic(topic string) (string, bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[1] != cmdTopic || items[2] == "" {
		return "", false
	}
	return items[2], true
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "mqtt: read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ReadWriter is the host end of a bridged serial link. Each Write is
// published as one request and replies are buffered for Read.
type ReadWriter struct {
	Queue    *Queue
	BridgeID string
	Session  string

	lock     sync.Mutex
	buf      bytes.Buffer
	notifyCh chan struct{}
	deadline time.Time
	closed   bool
	sub      *Subscription
}

// NewReadWriter creates a ReadWriter for a session on a bridge.
// Subscribe must be called once the queue is connected.
func NewReadWriter(q *Queue, bridgeID, session string) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		BridgeID: bridgeID,
		Session:  session,
		notifyCh: make(chan struct{}, 1),
	}
}

// Dial connects to the bridge addressed by a URL like
// mqtt://host:1883/prefix/<bridge-id>.
func Dial(bridgeURL string) (*ReadWriter, error) {
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return nil, err
	}
	dir, id := path.Split(strings.TrimSuffix(u.Path, "/"))
	if id == "" {
		return nil, fmt.Errorf("bridge ID missing in %q", bridgeURL)
	}
	u.Path = dir
	opts, prefix, err := ClientOptionsFromURL(u.String())
	if err != nil {
		return nil, err
	}
	session := uuid.New().String()
	if opts.ClientID == "" {
		opts.SetClientID("fpm:" + session)
	}
	q := NewQueue(opts, prefix)
	token := q.Connect()
	if token.Wait(); token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", u.Host, token.Error())
	}
	rw := NewReadWriter(q, id, session)
	if err := rw.Subscribe(); err != nil {
		q.Close()
		return nil, err
	}
	return rw, nil
}

// Subscribe starts receiving replies.
func (p *ReadWriter) Subscribe() error {
	p.sub = p.Queue.Sub(ReplyTopic(p.BridgeID, p.Session), p.handleReply)
	p.sub.Token.Wait()
	return p.sub.Token.Error()
}

// Flush discards replies received but not read.
func (p *ReadWriter) Flush() error {
	p.lock.Lock()
	if n := p.buf.Len(); n > 0 {
		glog.V(1).Infof("%s: discarded %d stale reply bytes", p.Session, n)
	}
	p.buf.Reset()
	p.lock.Unlock()
	return nil
}

// Write implements io.Writer. Each Write is published as one request.
func (p *ReadWriter) Write(b []byte) (int, error) {
	token := p.Queue.Pub(CmdTopic(p.BridgeID, p.Session), append([]byte(nil), b...))
	token.Wait()
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read implements io.Reader. It blocks until a reply arrives, the read
// deadline passes or the ReadWriter is closed.
func (p *ReadWriter) Read(b []byte) (int, error) {
	for {
		p.lock.Lock()
		if p.buf.Len() > 0 {
			n, err := p.buf.Read(b)
			p.lock.Unlock()
			return n, err
		}
		if p.closed {
			p.lock.Unlock()
			return 0, io.EOF
		}
		deadline := p.deadline
		p.lock.Unlock()

		if deadline.IsZero() {
			<-p.notifyCh
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, timeoutError{}
		}
		timer := time.NewTimer(wait)
		select {
		case <-p.notifyCh:
			timer.Stop()
		case <-timer.C:
			return 0, timeoutError{}
		}
	}
}

// SetReadDeadline sets the deadline for Read. Zero means no deadline.
func (p *ReadWriter) SetReadDeadline(t time.Time) error {
	p.lock.Lock()
	p.deadline = t
	p.lock.Unlock()
	return nil
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	p.lock.Unlock()
	p.notify()
	if p.sub != nil {
		p.sub.Close()
	}
	return p.Queue.Close()
}

func (p *ReadWriter) handleReply(_ string, payload []byte) {
	p.lock.Lock()
	p.buf.Write(payload)
	p.lock.Unlock()
	p.notify()
}

func (p *ReadWriter) notify() {
	select {
	case p.notifyCh <- struct{}{}:
	default:
	}
}
