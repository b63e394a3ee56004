package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/morezero/native-bridge/pkg/commsutil"
	"github.com/morezero/native-bridge/pkg/dispatcher"
)

const wsLogPrefix = "server:websocket"

func (s *Server) websocketHandler() http.Handler {
	return websocket.Server{
		Handshake: checkOrigin,
		Handler:   s.serveWebSocket,
	}
}

// checkOrigin accepts non-browser clients (no Origin header) and same-host pages.
func checkOrigin(cfg *websocket.Config, req *http.Request) error {
	raw := req.Header.Get("Origin")
	if raw == "" {
		return nil
	}
	origin, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s - invalid origin %q: %w", wsLogPrefix, raw, err)
	}
	if origin.Host != req.Host {
		slog.Warn(fmt.Sprintf("%s - rejected origin %s for host %s", wsLogPrefix, raw, req.Host))
		return fmt.Errorf("%s - origin %s not allowed", wsLogPrefix, raw)
	}
	cfg.Origin = origin
	return nil
}

// serveWebSocket runs one channel: a single reader loop dispatching frames in arrival order,
// with responses serialized onto the socket as text frames.
func (s *Server) serveWebSocket(ws *websocket.Conn) {
	name := fmt.Sprintf("ws-%d", s.nextChannel.Add(1))
	ctx := ws.Request().Context()
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	var mu sync.Mutex
	c := s.openChannel(name, dispatcher.SinkFunc(func(resp *dispatcher.Response) error {
		data, err := commsutil.EncodePayload(resp)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return websocket.Message.Send(ws, string(data))
	}))
	defer s.closeChannel(c)
	defer ws.Close()

	for {
		var frame []byte
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				slog.Debug(fmt.Sprintf("%s - %s disconnected", wsLogPrefix, name))
			} else {
				slog.Warn(fmt.Sprintf("%s - %s read error: %v", wsLogPrefix, name, err))
			}
			return
		}
		s.disp.HandleFrame(ctx, frame, c)
	}
}
