package server

import (
	"context"
	"errors"
	log "log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"furnivox/internal/assets"
	"furnivox/internal/command"
	"furnivox/internal/inventory"
	"furnivox/internal/nlu"
)

// Processor turns command text into an action for the client.
type Processor interface {
	Process(ctx context.Context, text string) (command.Action, error)
}

type Options struct {
	Commands     Processor
	Transcriber  nlu.Transcriber // nil disables /api/process_audio
	Assets       *assets.Store
	Index        *inventory.Index
	InventoryCSV string
	CORSOrigins  []string

	MaxAudioBytes   int64
	MaxAudioSamples int
}

type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	handler  http.Handler
}

func New(opts Options) *Server {
	if opts.Index == nil {
		opts.Index = inventory.Empty()
	}
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = 10 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{opts: opts}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /api/process_command", s.handleProcessCommand)
	mux.HandleFunc("POST /api/process_audio", s.handleProcessAudio)
	mux.HandleFunc("GET /api/inventory", s.handleInventory)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("GET /models/{category}/{filename}", s.handleModel)
	mux.HandleFunc("GET /models/{category}", s.handleListModels)
	mux.HandleFunc("GET /glb/{id}", s.handleGLB)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /inventory.csv", s.handleInventoryCSV)
	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	})
	s.handler = withRequestLog(c.Handler(mux))

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.opts.CORSOrigins, "*") {
		return true
	}
	return slices.Contains(s.opts.CORSOrigins, origin)
}

// Serve blocks until ctx is cancelled or the listener fails. On cancel,
// in-flight requests get a few seconds to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log.Info("Listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
