package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
)

func init() {
	storage.Register(storage.Registration{
		Info: storage.EngineInfo{
			Name:        EngineName,
			DisplayName: "PostgreSQL",
		},
		Factory: func(ctx context.Context, cfg *storage.Config, logger *zap.Logger) (storage.Store, error) {
			return Open(ctx, cfg, logger)
		},
	})
}
