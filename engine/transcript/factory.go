package transcript

import (
	"context"

	"github.com/roundslab/rounds/engine/core"
	"github.com/roundslab/rounds/pkg/config"
)

// NewStore builds the store selected by configuration.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Transcript.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Transcript.Path)
	default:
		return nil, core.NewError(nil, "UNSUPPORTED_TRANSCRIPT_DRIVER", map[string]any{
			"driver": cfg.Transcript.Driver,
		})
	}
}
