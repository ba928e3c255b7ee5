package processor

import (
	"go.uber.org/fx"

	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
	"github.com/tigerroll/swell/pkg/stream/core/port"
)

// newRowProcessor builds the record processor with the configured timezone.
func newRowProcessor(cfg *coreconfig.Config) (port.RowProcessor, error) {
	return NewRecordProcessor(cfg.Swell.System.Timezone)
}

// Module provides the record processor.
var Module = fx.Options(
	fx.Provide(newRowProcessor),
)
