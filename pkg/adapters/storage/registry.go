package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

// EngineInfo describes a registered engine.
type EngineInfo struct {
	Name        string `json:"name"`         // "postgres", "sqlserver", "mysql", "sqlite", "memory"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
}

// Factory opens a store for the given config.
type Factory func(ctx context.Context, cfg *Config, logger *zap.Logger) (Store, error)

// Registration pairs engine info with its factory.
type Registration struct {
	Info    EngineInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each engine's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Name] = reg
}

// RegisteredEngines returns info for all registered engines, sorted by name.
func RegisteredEngines() []EngineInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EngineInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// IsRegistered checks if an engine is available.
func IsRegistered(engine string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[engine]
	return ok
}

// Open creates a store with the engine named in cfg.Engine.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (Store, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Engine]
	registryMu.RUnlock()

	if !ok {
		return nil, apperrors.New(apperrors.ErrConfiguration,
			fmt.Sprintf("unknown storage engine %q", cfg.Engine))
	}

	store, err := reg.Factory(ctx, cfg, logger.Named("storage").With(zap.String("engine", cfg.Engine)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", reg.Info.DisplayName, err)
	}
	return store, nil
}
