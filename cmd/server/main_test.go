package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kedaipos/backend/internal/config"
	"kedaipos/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", StoreDriver: config.DriverMemory})
	assert.Error(t, err)
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, StoreDriver: config.DriverMemory})
	assert.NoError(t, err)
}

func TestValidateSecurityConfigNeedsDatabaseURLs(t *testing.T) {
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, StoreDriver: config.DriverPostgres}))
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, StoreDriver: config.DriverMongo}))
	assert.NoError(t, validateSecurityConfig(config.Config{
		AuthSecret: strongSecret, StoreDriver: config.DriverMongo, MongoURI: "mongodb://localhost:27017",
	}))
}

func TestOpenRepositoryDefaultsToSeededMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{StoreDriver: config.DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, closers)

	business, err := repo.GetBusiness(context.Background(), memory.SeedBusinessID)
	require.NoError(t, err)
	assert.Equal(t, "Kedai Demo", business.Name)
}
