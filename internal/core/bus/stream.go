package bus

import (
	"fmt"
	"strings"

	"github.com/embedhq/vectorproxy/internal/core"
)

// ParseStream splits a stream key of the form "<datasourceId>_<configKey>"
// into its parts. Config keys may themselves contain underscores, so only
// the first one separates.
func ParseStream(stream string) (datasourceID, configKey string, err error) {
	datasourceID, configKey, found := strings.Cut(stream, "_")
	if !found || datasourceID == "" || configKey == "" {
		return "", "", fmt.Errorf("%w: %q", core.ErrMalformedStream, stream)
	}
	return datasourceID, configKey, nil
}
