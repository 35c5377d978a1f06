package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsSane(t *testing.T) {
	opts := DefaultOptions()
	assert.False(t, opts.Deflate)
	assert.Equal(t, 15, opts.windowSizeBits())
	assert.Greater(t, opts.MaxFrameSize, int64(0))
	assert.Greater(t, opts.SendQueueSize, 0)
}

func TestLoadOptionsYAMLOverridesDefaults(t *testing.T) {
	data := []byte(`
deflate: true
compression_window_bits: 10
max_message_size: 1048576
handshake_timeout: 5s
`)
	opts, err := LoadOptionsYAML(data)
	require.NoError(t, err)
	assert.True(t, opts.Deflate)
	assert.Equal(t, 10, opts.windowSizeBits())
	assert.EqualValues(t, 1048576, opts.MaxMessageSize)
	assert.Equal(t, 5*time.Second, opts.HandshakeTimeout)

	// Fields not mentioned in the YAML keep their DefaultOptions() value.
	assert.Equal(t, DefaultOptions().ReadBufferSize, opts.ReadBufferSize)
}

func TestLoadOptionsYAMLRejectsGarbage(t *testing.T) {
	_, err := LoadOptionsYAML([]byte("not: [valid"))
	require.Error(t, err)
	wsErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindConfig, wsErr.Kind)
}

func TestWindowSizeBitsClampsOutOfRange(t *testing.T) {
	opts := DefaultOptions()
	opts.CompressionWindowBits = 2
	assert.Equal(t, 15, opts.windowSizeBits())
	opts.CompressionWindowBits = 30
	assert.Equal(t, 15, opts.windowSizeBits())
	opts.CompressionWindowBits = 9
	assert.Equal(t, 9, opts.windowSizeBits())
}
