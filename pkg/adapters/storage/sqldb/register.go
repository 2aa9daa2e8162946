package sqldb

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
)

func init() {
	for _, d := range Dialects {
		dialect := d
		storage.Register(storage.Registration{
			Info: storage.EngineInfo{
				Name:        dialect.Name,
				DisplayName: dialect.DisplayName,
			},
			Factory: func(ctx context.Context, cfg *storage.Config, logger *zap.Logger) (storage.Store, error) {
				return Open(ctx, dialect, cfg, logger)
			},
		})
	}
}
