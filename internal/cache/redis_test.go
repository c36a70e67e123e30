package cache

import (
	"context"
	"testing"
	"time"

	"example.com/jonoshongjog/services/relief/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	ctx := context.Background()
	var out string
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrDisabled)
	assert.ErrorIs(t, c.Set(ctx, "k", "v", time.Minute), ErrDisabled)
	assert.ErrorIs(t, c.Delete(ctx, "k"), ErrDisabled)

	userID := uuid.New()
	c.SetVolunteerProfileID(ctx, userID, uuid.New())
	_, ok := c.GetVolunteerProfileID(ctx, userID)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7f1c5d2e-4a3b-4c1d-9e8f-0a1b2c3d4e5f")
	assert.Equal(t, "volunteer:user:7f1c5d2e-4a3b-4c1d-9e8f-0a1b2c3d4e5f", VolunteerProfileKey(id))
	assert.Equal(t, "chat:session:abc", ChatSessionKey("abc"))
}
