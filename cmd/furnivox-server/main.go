package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"furnivox/internal/assets"
	"furnivox/internal/config"
	"furnivox/internal/inventory"
	"furnivox/internal/nlu"
	"furnivox/internal/proxy"
	"furnivox/internal/server"
	"furnivox/pkg/audioconv"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	log.Info("Booting up")

	if err := run(cfg); err != nil {
		log.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := inventory.Load(cfg.InventoryCSV)

	var client openai.Client
	if cfg.NeedsOpenAI() {
		httpClient, err := proxy.NewHTTPClient(cfg.Proxy, cfg.Timeout)
		if err != nil {
			return err
		}
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client = openai.NewClient(opts...)
		log.Debug("Loaded API client", "proxy", cfg.Proxy != "", "base_url", cfg.BaseURL)
	}

	var reasoner nlu.Reasoner
	switch cfg.Reasoner {
	case config.ReasonerPattern:
		reasoner = nlu.NewMatcher(idx)
	default:
		reasoner = nlu.NewOpenAI(client, cfg.Model, cfg.MaxTokens)
	}

	svc, err := nlu.NewService(reasoner, idx, cfg.Timeout)
	if err != nil {
		return fmt.Errorf("build command service: %w", err)
	}

	var tr nlu.Transcriber
	switch cfg.STT {
	case config.STTOpenAI:
		tr = nlu.NewOpenAITranscriber(client, cfg.STTModel)
	case config.STTWhisper:
		w, closeFn, err := newWhisper(cfg.WhisperModel)
		if err != nil {
			return err
		}
		defer closeFn()
		tr = w
	}

	log.Info("Boot up - successful",
		"reasoner", reasoner.Name(),
		"stt", cfg.STT,
		"models", idx.Len(),
		"models_dir", cfg.ModelsDir,
	)

	srv := server.New(server.Options{
		Commands:        svc,
		Transcriber:     tr,
		Assets:          assets.NewStore(cfg.ModelsDir, cfg.GLBDir),
		Index:           idx,
		InventoryCSV:    cfg.InventoryCSV,
		CORSOrigins:     cfg.CORSOrigins,
		MaxAudioSamples: int(cfg.MaxAudio.Seconds() * audioconv.SampleRate),
	})

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	return srv.Serve(ctx, ln)
}
