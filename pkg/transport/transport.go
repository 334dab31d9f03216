// Package transport opens the link to a fingerprint module from a port
// string: a serial device path, a simulator or a remote bridge.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/fpm.go/pkg/comm/mqtt"
	"github.com/robotalks/fpm.go/pkg/fpm"
	"github.com/robotalks/fpm.go/pkg/serial"
	"github.com/robotalks/fpm.go/pkg/sim"
)

// RemoteMargin is added to the reply timeout on links through a bridge,
// so the host outlasts the bridge waiting on its own serial port.
const RemoteMargin = time.Second

// drainWait bounds the wait for in-flight replies when flushing a
// websocket link.
const drainWait = 10 * time.Millisecond

// Config specifies the link.
type Config struct {
	// Port is a device path like /dev/ttyUSB0 or a URL:
	//
	//	sim://?users=N&finger=F
	//	mqtt://host:1883/prefix/<bridge-id>
	//	ws://host:port/fpm
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// Open opens the link.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	if !strings.Contains(cfg.Port, "://") {
		serialCfg := serial.DefaultConfig(cfg.Port)
		if cfg.Baud > 0 {
			serialCfg.Baud = cfg.Baud
		}
		if cfg.ReadTimeout > 0 {
			serialCfg.ReadTimeout = cfg.ReadTimeout
		}
		port, err := serial.Open(serialCfg)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	u, err := url.Parse(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid port URL: %w", err)
	}
	var rw io.ReadWriteCloser
	switch u.Scheme {
	case "sim":
		rw, err = openSim(u.Query())
	case "mqtt", "tcp", "ssl":
		rw, err = mqtt.Dial(u.String())
	case "ws", "wss":
		rw, err = dialWebsocket(u)
	default:
		err = fmt.Errorf("unknown port URL scheme: %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return rw, nil
}

// IsRemote reports whether port is reached through a bridge.
func IsRemote(port string) bool {
	u, err := url.Parse(port)
	if err != nil || !strings.Contains(port, "://") {
		return false
	}
	switch u.Scheme {
	case "mqtt", "tcp", "ssl", "ws", "wss":
		return true
	}
	return false
}

// ReplyTimeout returns the reply timeout a client should use on port.
func ReplyTimeout(port string, timeout time.Duration) time.Duration {
	if IsRemote(port) {
		return timeout + RemoteMargin
	}
	return timeout
}

func openSim(query url.Values) (*sim.Sensor, error) {
	s := sim.NewSensor()
	if val := query.Get("users"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 || n > s.Capacity {
			return nil, fmt.Errorf("invalid users: %q", val)
		}
		for i := 1; i <= n; i++ {
			s.AddUser(fpm.UserID(i), 1, i)
		}
	}
	if val := query.Get("finger"); val != "" {
		finger, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid finger: %q", val)
		}
		s.PlaceFinger(finger)
	}
	return s, nil
}

// WebsocketConn is a websocket link to a bridge. Each Write is sent as one
// binary message.
type WebsocketConn struct {
	*websocket.Conn
}

// Flush discards replies already received or arriving within a short
// window, e.g. a late reply to a request the host gave up on.
func (c *WebsocketConn) Flush() error {
	buf := make([]byte, 4*int(fpm.FrameSize))
	discarded := 0
	for {
		if err := c.Conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
			return err
		}
		n, err := c.Conn.Read(buf)
		discarded += n
		if err != nil {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				return err
			}
			break
		}
	}
	if discarded > 0 {
		glog.V(1).Infof("ws: discarded %d stale reply bytes", discarded)
	}
	return c.Conn.SetReadDeadline(time.Time{})
}

func dialWebsocket(u *url.URL) (*WebsocketConn, error) {
	origin := "http://" + u.Host + "/"
	if u.Scheme == "wss" {
		origin = "https://" + u.Host + "/"
	}
	if u.Path == "" {
		u.Path = "/fpm"
	}
	ws, err := websocket.Dial(u.String(), "", origin)
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return &WebsocketConn{Conn: ws}, nil
}
