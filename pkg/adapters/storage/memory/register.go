package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
)

func init() {
	storage.Register(storage.Registration{
		Info: storage.EngineInfo{
			Name:        EngineName,
			DisplayName: "In-memory",
		},
		Factory: func(ctx context.Context, cfg *storage.Config, logger *zap.Logger) (storage.Store, error) {
			logger.Warn("Using in-memory storage; data will be lost on restart")
			return New(logger), nil
		},
	})
}
