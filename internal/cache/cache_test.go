package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/posprint/internal/service/printclient"
)

func TestTokenEncoding(t *testing.T) {
	token := printclient.Token{Value: "abc:def", ExpiresAt: time.Unix(1760000000, 0)}

	raw := encodeToken(token)
	require.Equal(t, "1760000000:abc:def", raw)

	decoded, err := decodeToken(raw)
	require.NoError(t, err)
	require.Equal(t, token.Value, decoded.Value)
	require.True(t, token.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestTokenDecodingErrors(t *testing.T) {
	for _, raw := range []string{"", "no-separator", "1760000000:", "soon:token"} {
		_, err := decodeToken(raw)
		require.Error(t, err, raw)
	}
}

func newTestStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisTokenStoreWithClient(client, "test:token")
	store.now = func() time.Time { return time.Unix(1760000000, 0) }
	return store, mr
}

func TestRedisTokenStoreLoadMissing(t *testing.T) {
	store, _ := newTestStore(t)

	token, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, printclient.Token{}, token)
	require.False(t, token.Valid(store.now()))
}

func TestRedisTokenStoreSave(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	token := printclient.Token{Value: "token-1", ExpiresAt: store.now().Add(time.Hour)}

	require.NoError(t, store.Save(ctx, token))
	raw, err := mr.Get("test:token")
	require.NoError(t, err)
	require.Equal(t, "1760003600:token-1", raw)
	// ключ живет ровно до истечения токена
	require.Equal(t, time.Hour, mr.TTL("test:token"))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "token-1", loaded.Value)
	require.True(t, token.ExpiresAt.Equal(loaded.ExpiresAt))

	mr.FastForward(time.Hour)
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, printclient.Token{}, loaded)
}

func TestRedisTokenStoreSaveExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, printclient.Token{Value: "old", ExpiresAt: store.now().Add(time.Hour)}))
	require.True(t, mr.Exists("test:token"))

	// просроченный токен не пишется, прежний удаляется
	require.NoError(t, store.Save(ctx, printclient.Token{Value: "stale", ExpiresAt: store.now().Add(-time.Second)}))
	require.False(t, mr.Exists("test:token"))
}

func TestRedisTokenStoreClear(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, printclient.Token{Value: "token-1", ExpiresAt: store.now().Add(time.Hour)}))
	require.NoError(t, store.Clear(ctx))
	require.False(t, mr.Exists("test:token"))

	// повторная очистка не ошибка
	require.NoError(t, store.Clear(ctx))
}

func TestRedisTokenStoreMalformed(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("test:token", "garbage"))

	_, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestRedisTokenStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestRedisTokenStoreBehindTokenCache(t *testing.T) {
	store, _ := newTestStore(t)
	store.now = time.Now
	ctx := context.Background()

	// токен, полученный одним экземпляром, виден другому
	first := printclient.NewTokenCache(store, func(ctx context.Context) (string, time.Duration, error) {
		return "shared", time.Hour, nil
	}, nil)
	second := printclient.NewTokenCache(store, func(ctx context.Context) (string, time.Duration, error) {
		return "", 0, errors.New("must not be called")
	}, nil)

	token, err := first.GetToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "shared", token)

	token, err = second.GetToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "shared", token)
}
