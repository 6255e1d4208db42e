package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/core"
)

func TestParseStream(t *testing.T) {
	dsID, configKey, err := ParseStream("ds1_cfg")
	require.NoError(t, err)
	assert.Equal(t, "ds1", dsID)
	assert.Equal(t, "cfg", configKey)
}

func TestParseStreamKeepsUnderscoresInConfigKey(t *testing.T) {
	dsID, configKey, err := ParseStream("ds1_cfg_with_underscores")
	require.NoError(t, err)
	assert.Equal(t, "ds1", dsID)
	assert.Equal(t, "cfg_with_underscores", configKey)
}

func TestParseStreamMalformed(t *testing.T) {
	for _, stream := range []string{"", "nodelimiter", "_missingid", "missingkey_"} {
		_, _, err := ParseStream(stream)
		assert.ErrorIs(t, err, core.ErrMalformedStream, "stream %q", stream)
	}
}
