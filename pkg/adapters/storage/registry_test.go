package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

func TestOpen_UnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), &Config{Engine: "oracle"}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "oracle")
}

func TestRegister_AndOpen(t *testing.T) {
	var gotCfg *Config
	Register(Registration{
		Info: EngineInfo{Name: "registry-test", DisplayName: "Registry Test"},
		Factory: func(ctx context.Context, cfg *Config, logger *zap.Logger) (Store, error) {
			gotCfg = cfg
			return nil, errors.New("refused")
		},
	})

	assert.True(t, IsRegistered("registry-test"))
	assert.False(t, IsRegistered("never-registered"))

	cfg := &Config{Engine: "registry-test", Host: "db.internal"}
	_, err := Open(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Registry Test")
	assert.Same(t, cfg, gotCfg)

	var names []string
	for _, info := range RegisteredEngines() {
		names = append(names, info.Name)
	}
	assert.Contains(t, names, "registry-test")
	assert.IsNonDecreasing(t, names)
}
