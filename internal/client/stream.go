package client

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"furnivox/internal/command"
)

// Stream is a websocket command session. Commands are answered in order,
// one reply frame each. A dropped connection is redialed on the next Send.
type Stream struct {
	url    string
	reconn time.Duration

	mu   sync.Mutex
	conn *ws.Conn
}

// Dial opens a session on the server's /ws endpoint. baseURL may use the
// http(s) or ws(s) scheme.
func Dial(ctx context.Context, baseURL string, reconn time.Duration) (*Stream, error) {
	if reconn <= 0 {
		reconn = time.Second
	}
	s := &Stream{
		url:    wsURL(baseURL),
		reconn: reconn,
	}

	log.Debug("Dialing websocket", "url", s.url)

	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	if !strings.HasSuffix(base, "/ws") {
		base += "/ws"
	}
	return base
}

func (s *Stream) dial(ctx context.Context) error {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.conn = conn
	return nil
}

// Send transmits one command and waits for its reply.
func (s *Stream) Send(ctx context.Context, text string) (command.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.tryReconn(ctx); err != nil {
			return nil, err
		}
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
		_ = s.conn.SetReadDeadline(dl)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	if err := s.conn.WriteJSON(map[string]string{"command": text}); err != nil {
		s.drop()
		return nil, fmt.Errorf("write command: %w", err)
	}

	var reply command.Action
	if err := s.conn.ReadJSON(&reply); err != nil {
		if isClosed(err) {
			log.Warn("Websocket closed by server", "url", s.url)
		}
		s.drop()
		return nil, fmt.Errorf("read reply: %w", err)
	}

	if msg, ok := reply["error"].(string); ok && reply.Name() == "" {
		return nil, fmt.Errorf("%w: %s", ErrServer, msg)
	}
	return reply, nil
}

// tryReconn redials until it succeeds or ctx ends.
func (s *Stream) tryReconn(ctx context.Context) error {
	for {
		err := s.dial(ctx)
		if err == nil {
			log.Info("Websocket reconnected", "url", s.url)
			return nil
		}
		log.Warn("Failed to reconnect", "url", s.url, "err", err)

		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), err)
		case <-time.After(s.reconn):
		}
	}
}

func (s *Stream) drop() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
