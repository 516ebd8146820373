package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load([]string{"--env", noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, ":5000", c.Addr)
	assert.Equal(t, ReasonerOpenAI, c.Reasoner)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, int64(300), c.MaxTokens)
	assert.Equal(t, STTNone, c.STT)
	assert.Equal(t, []string{"*"}, c.CORSOrigins)
	assert.Equal(t, "sk-test", c.APIKey)
}

func TestLoad_EnvFallbackAndFlagPrecedence(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("FURNIVOX_ADDR", ":8080")
	t.Setenv("FURNIVOX_REASONER", "pattern")
	t.Setenv("FURNIVOX_TIMEOUT", "5s")
	t.Setenv("FURNIVOX_CORS_ORIGINS", "http://quest.local, http://localhost:3000")

	c, err := Load([]string{"--env", noEnvFile(t), "--addr", ":9090"})
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.Addr)
	assert.Equal(t, ReasonerPattern, c.Reasoner)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, []string{"http://quest.local", "http://localhost:3000"}, c.CORSOrigins)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FURNIVOX_TEST_ONLY_MODELS=/srv/glb\nOPENAI_API_KEY=sk-from-file\n"), 0o600))
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Cleanup(func() { os.Unsetenv("FURNIVOX_TEST_ONLY_MODELS") })

	c, err := Load([]string{"-e", path})
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", c.APIKey)
	assert.Equal(t, "/srv/glb", os.Getenv("FURNIVOX_TEST_ONLY_MODELS"))
}

func TestLoad_RequiresKeyForOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load([]string{"--env", noEnvFile(t)})
	assert.ErrorContains(t, err, "OPENAI_API_KEY not set")

	_, err = Load([]string{"--env", noEnvFile(t), "--reasoner", "pattern"})
	assert.NoError(t, err)

	_, err = Load([]string{"--env", noEnvFile(t), "--base-url", "http://127.0.0.1:1337/v1"})
	assert.NoError(t, err)
}

func TestLoad_RejectsUnknownValues(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load([]string{"--env", noEnvFile(t), "--reasoner", "oracle", "--stt", "telepathy"})
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown reasoner "oracle"`)
	assert.ErrorContains(t, err, `unknown stt "telepathy"`)

	_, err = Load([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FURNIVOX_TIMEOUT", "soon")

	_, err := Load([]string{"--env", noEnvFile(t)})
	assert.ErrorContains(t, err, "FURNIVOX_TIMEOUT")
}
