package container

import (
	"context"
	"fmt"
	"testing"

	"combolift/adapters/api"
	"combolift/internal/config"
	"combolift/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestInitWithKit(t *testing.T) {
	c, err := New(config.Defaults())
	require.NoError(t, err)

	kit := testkit.NewTestKit(nil, nil)
	require.NoError(t, c.InitWithKit(kit))

	assert.Same(t, kit.Repository, c.Repository)
	assert.NotNil(t, c.Search)
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestInit_RejectsMissingDependencies(t *testing.T) {
	c, err := New(config.Defaults())
	require.NoError(t, err)

	assert.Error(t, c.InitWithDatabase(nil))
	assert.Error(t, c.InitWithKit(nil))
	assert.Error(t, c.InitWithFile("", testkit.NewInMemoryPatternRepository(), nil))
	assert.Error(t, c.InitWithFile("engagement.xlsx", nil, nil))
	assert.Nil(t, c.Search)
}

func TestInitWithFile(t *testing.T) {
	c, err := New(config.Defaults())
	require.NoError(t, err)

	require.NoError(t, c.InitWithFile("engagement.xlsx", testkit.NewInMemoryPatternRepository(), nil))
	assert.NotNil(t, c.Loader)
	assert.NotNil(t, c.Search)
}

func TestEngagementLoader_PrefersConfiguredAPI(t *testing.T) {
	cfg := config.Defaults()
	c, err := New(cfg)
	require.NoError(t, err)

	assert.NotEqual(t, "*api.Loader", fmt.Sprintf("%T", c.engagementLoader(nil)))

	cfg.EngagementAPI.URL = "https://analytics.example.com/v1/engagement"
	assert.IsType(t, &api.Loader{}, c.engagementLoader(nil))
}
