package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagsServiceIdentity(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level: LevelInfo, Format: FormatJSON,
		ServiceName: "bbqued", ServiceVersion: "0.1.0", Environment: "test",
		Output: &buf,
	})
	log.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"service":"bbqued"`)
	assert.Contains(t, out, `"env":"test"`)
	assert.Contains(t, out, `"msg":"hello"`)
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})
	log.Info().Msg("should be dropped")
	assert.Empty(t, buf.String())

	log.Warn().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestComponentAddsTag(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	comp := Component(base, "accounter")
	comp.Info().Msg("booked")

	require.Contains(t, buf.String(), `"component":"accounter"`)
}
