package logging

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warn "))
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	closer := Setup(Options{Level: "debug", File: path})
	require.NotNil(t, closer)
	log.Info().Msg("hello")
	assert.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

func TestRecoverSwallowsPanic(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	assert.NotPanics(t, func() {
		defer Recover("test")
		panic("boom")
	})
	assert.Contains(t, buf.String(), `"scope":"test"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestGoRecovers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	Go("worker", func() {
		defer wg.Done()
		panic("worker died")
	})
	wg.Wait()
}
