package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
	"github.com/tendant/mlr-content/pkg/mlrcontent/repo/memory"
)

func newCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Config{TTL: ttl}), mr
}

func TestCache_GetSetDelete(t *testing.T) {
	cache, mr := newCache(t, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, id, "<p>A</p>"))
	html, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<p>A</p>", html)
	assert.True(t, mr.Exists(DefaultKeyPrefix+id.String()))

	require.NoError(t, cache.Delete(ctx, id))
	_, ok, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Expires(t *testing.T) {
	cache, mr := newCache(t, 30*time.Second)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, cache.Set(ctx, id, "<p>A</p>"))
	mr.FastForward(31 * time.Second)

	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), addr, "")
	assert.Error(t, err)
}

func TestCache_BehindContentStore(t *testing.T) {
	cache, _ := newCache(t, time.Minute)
	store, err := mlrcontent.NewContentStore(memory.New(), mlrcontent.WithHTMLCache(cache))
	require.NoError(t, err)
	ctx := context.Background()

	item, err := store.SaveContent(ctx, mlrcontent.SaveContentRequest{
		ContentType: mlrcontent.ContentTypeBanner,
		Audience:    mlrcontent.AudiencePatient,
		HTML:        "<p>A</p>",
	})
	require.NoError(t, err)

	html, err := store.ServeHTML(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>A</p>", html)

	_, _, err = store.UpdateContentHTML(ctx, mlrcontent.UpdateHTMLRequest{ID: item.ID, HTML: "<p>B</p>"})
	require.NoError(t, err)

	html, err = store.ServeHTML(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>B</p>", html, "updates invalidate the cached copy")
}
