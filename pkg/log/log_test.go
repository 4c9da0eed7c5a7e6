package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewRespectsConfiguredLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, New(Config{Level: "warn"}).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, New(Config{Level: "debug"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: "nonsense"}).GetLevel())
}

func TestParseLevelAliases(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel(" error "))
	assert.Equal(t, zerolog.TraceLevel, parseLevel("trace"))
}

func TestGlobalLoggerSupportsChainedEvents(t *testing.T) {
	// Event constructors take a pointer receiver; L must hand out an
	// addressable logger so call sites can chain directly.
	L().Debug().Str("k", "v").Msg("chained event")
	L().Warn().Int("n", 1).Msg("chained event")

	child := L().With().Str("component", "test").Logger()
	child.Info().Msg("derived logger")
}
