package bridge

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/fpm.go/pkg/framework"
)

// WebsocketPath is where the websocket endpoint is served.
const WebsocketPath = "/fpm"

// WebsocketHandler serves the bridge over websocket. Each binary message
// is one request frame and each reply is sent as one message.
func (b *Bridge) WebsocketHandler() websocket.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()
		peer := ws.Request().RemoteAddr
		glog.Infof("ws: %s connected", peer)
		for {
			var frame []byte
			if err := websocket.Message.Receive(ws, &frame); err != nil {
				if err != io.EOF {
					glog.Warningf("ws: %s: %v", peer, err)
				}
				break
			}
			reply, err := b.Forward("ws", frame)
			if err != nil || len(reply) == 0 {
				continue
			}
			if err := websocket.Message.Send(ws, reply); err != nil {
				glog.Warningf("ws: %s: %v", peer, err)
				break
			}
		}
		glog.Infof("ws: %s disconnected", peer)
	})
}

// HTTPServer serves the websocket endpoint and optional extra handlers,
// e.g. metrics.
type HTTPServer struct {
	Addr     string
	Handlers map[string]http.Handler
}

// Run implements Runnable.
func (s *HTTPServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	for path, h := range s.Handlers {
		mux.Handle(path, h)
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	glog.Infof("listening on %s", ln.Addr())
	server := &http.Server{Handler: mux}
	return framework.CloseOnCancel(ctx, ln, func() error {
		return server.Serve(ln)
	})
}
