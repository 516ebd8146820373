package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
)

const (
	ReasonerOpenAI  = "openai"
	ReasonerPattern = "pattern"

	STTNone    = "none"
	STTOpenAI  = "openai"
	STTWhisper = "whisper"
)

type Config struct {
	EnvFile      string
	Addr         string
	ModelsDir    string
	GLBDir       string
	InventoryCSV string

	Reasoner  string
	Model     string
	BaseURL   string
	APIKey    string
	Proxy     string
	Timeout   time.Duration
	MaxTokens int64

	STT          string
	STTModel     string
	WhisperModel string
	MaxAudio     time.Duration

	CORSOrigins []string
	LogLevel    string
}

// env maps flag names to the variables consulted when the flag is not
// given on the command line.
var env = map[string]string{
	"addr":          "FURNIVOX_ADDR",
	"models-dir":    "FURNIVOX_MODELS_DIR",
	"glb-dir":       "FURNIVOX_GLB_DIR",
	"inventory":     "FURNIVOX_INVENTORY",
	"reasoner":      "FURNIVOX_REASONER",
	"model":         "FURNIVOX_MODEL",
	"base-url":      "OPENAI_BASE_URL",
	"proxy":         "FURNIVOX_PROXY",
	"timeout":       "FURNIVOX_TIMEOUT",
	"max-tokens":    "FURNIVOX_MAX_TOKENS",
	"stt":           "FURNIVOX_STT",
	"stt-model":     "FURNIVOX_STT_MODEL",
	"whisper-model": "FURNIVOX_WHISPER_MODEL",
	"max-audio":     "FURNIVOX_MAX_AUDIO",
	"cors-origins":  "FURNIVOX_CORS_ORIGINS",
	"log":           "FURNIVOX_LOG",
}

// Load parses args (without the program name). The env file named by
// --env is loaded first; a missing file is not an error. Values already
// present in the process environment win over the file.
func Load(args []string) (*Config, error) {
	var c Config

	fl := cli.NewFlagSet("furnivox-server", cli.ContinueOnError)
	fl.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path")
	fl.StringVarP(&c.Addr, "addr", "a", ":5000", "Listen address")
	fl.StringVar(&c.ModelsDir, "models-dir", "models", "Directory with one sub-directory of .glb files per category")
	fl.StringVar(&c.GLBDir, "glb-dir", "", "Directory with <id>.glb files (defaults to --models-dir)")
	fl.StringVar(&c.InventoryCSV, "inventory", "inventory.csv", "Inventory CSV (model_id,categories)")
	fl.StringVarP(&c.Reasoner, "reasoner", "r", ReasonerOpenAI, "Command reasoner: openai|pattern")
	fl.StringVarP(&c.Model, "model", "m", "gpt-4o-mini", "Chat model")
	fl.StringVar(&c.BaseURL, "base-url", "", "OpenAI compatible API base URL")
	fl.StringVarP(&c.Proxy, "proxy", "p", "", "SOCKS5 proxy address for API calls")
	fl.DurationVar(&c.Timeout, "timeout", 30*time.Second, "Reasoner call timeout")
	fl.Int64Var(&c.MaxTokens, "max-tokens", 300, "Max completion tokens")
	fl.StringVar(&c.STT, "stt", STTNone, "Speech to text: none|openai|whisper")
	fl.StringVar(&c.STTModel, "stt-model", "whisper-1", "OpenAI transcription model")
	fl.StringVar(&c.WhisperModel, "whisper-model", "models/ggml-base.en.bin", "whisper.cpp model file")
	fl.DurationVar(&c.MaxAudio, "max-audio", 30*time.Second, "Longest accepted voice recording")
	fl.StringSliceVar(&c.CORSOrigins, "cors-origins", []string{"*"}, "Allowed CORS origins")
	fl.StringVarP(&c.LogLevel, "log", "l", "info", "Log level: debug|info|warn|error")

	if err := fl.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", c.EnvFile, err)
	}

	var errs []error
	fl.VisitAll(func(f *cli.Flag) {
		name, ok := env[f.Name]
		if !ok || f.Changed {
			return
		}
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		if f.Value.Type() == "stringSlice" {
			v = strings.Join(strings.Fields(strings.ReplaceAll(v, ",", " ")), ",")
		}
		if err := f.Value.Set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c.APIKey = os.Getenv("OPENAI_API_KEY")

	return &c, c.Validate()
}

func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{ReasonerOpenAI, ReasonerPattern}, c.Reasoner) {
		errs = append(errs, fmt.Errorf("unknown reasoner %q", c.Reasoner))
	}
	if !slices.Contains([]string{STTNone, STTOpenAI, STTWhisper}, c.STT) {
		errs = append(errs, fmt.Errorf("unknown stt %q", c.STT))
	}
	if c.NeedsOpenAI() && c.APIKey == "" && c.BaseURL == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY not set"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("empty listen address"))
	}

	return errors.Join(errs...)
}

// NeedsOpenAI reports whether any configured component talks to the API.
func (c *Config) NeedsOpenAI() bool {
	return c.Reasoner == ReasonerOpenAI || c.STT == STTOpenAI
}
