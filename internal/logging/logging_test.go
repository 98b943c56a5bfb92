package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Output: &buf})
	require.NoError(t, err)

	log.Debug().Str("mailbox", "Escalar").Msg("moved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "Escalar", line["mailbox"])
	assert.Equal(t, "moved", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "console", Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"ana.souza@example.com": "a*******a@e*****e.c*m",
		"a@b.io":                "*@*.io",
		"  bob@x.org ":          "b*b@*.o*g",
		"not an address":        "not an address",
		"@example.com":          "@example.com",
		"user@":                 "user@",
		"joão@exemplo.br":       "j**o@e*****o.br",
	}
	for in, want := range tests {
		assert.Equal(t, want, MaskEmail(in), "input %q", in)
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "", Summarize(""))
	assert.Equal(t, "bytes=5", Summarize("hello"))
}
