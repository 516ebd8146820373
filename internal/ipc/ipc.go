package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	CmdTrigger = "trigger"
	CmdSay     = "say"
	CmdQuit    = "quit"
)

// readTimeout bounds how long a client may take to send its message.
var readTimeout = 5 * time.Second

// ControlMessage is one request on the control socket. Text carries the
// utterance of a CmdSay.
type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

// DefaultSocketPath prefers $XDG_RUNTIME_DIR and falls back to the temp dir.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "furnivox.sock")
}

type Server struct {
	ln   net.Listener
	path string
}

// Listen binds the control socket, removing a stale one left by a crashed
// daemon.
func Listen(path string) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Server{ln: ln, path: path}, nil
}

func (s *Server) Addr() string {
	return s.path
}

// Serve calls handler for every received message until ctx is cancelled.
// Messages are handled one at a time, in arrival order.
func (s *Server) Serve(ctx context.Context, handler func(ControlMessage)) error {
	msgs := make(chan ControlMessage)
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	go func() {
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Failed to accept control connection", "err", err)
				continue
			}
			go handleConn(ctx, conn, msgs)
		}
	}()

	for {
		select {
		case msg := <-msgs:
			handler(msg)
		case <-ctx.Done():
			os.Remove(s.path)
			return ctx.Err()
		}
	}
}

func handleConn(ctx context.Context, conn net.Conn, msgs chan<- ControlMessage) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Warn("Failed to set control read deadline", "err", err)
		return
	}

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}

	select {
	case msgs <- msg:
	case <-ctx.Done():
	}
}

func Send(path string, msg ControlMessage) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()

	return json.NewEncoder(conn).Encode(msg)
}
