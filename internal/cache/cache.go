// Package cache хранит токен доступа к облачной печати в Redis,
// чтобы несколько экземпляров сервиса пользовались одним токеном.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iurnickita/posprint/internal/cache/config"
	"github.com/iurnickita/posprint/internal/service/printclient"
)

const defaultKey = "posprint:yilianyun:access_token"

type RedisTokenStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisTokenStore(cfg config.Config) (*RedisTokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTokenStoreWithClient(client, cfg.Key), nil
}

func NewRedisTokenStoreWithClient(client *redis.Client, key string) *RedisTokenStore {
	if key == "" {
		key = defaultKey
	}
	return &RedisTokenStore{client: client, key: key, now: time.Now}
}

// Значение хранится как "<unix expires_at>:<token>", TTL совпадает со сроком годности.
func (s *RedisTokenStore) Load(ctx context.Context) (printclient.Token, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return printclient.Token{}, nil
		}
		return printclient.Token{}, err
	}
	return decodeToken(raw)
}

func (s *RedisTokenStore) Save(ctx context.Context, token printclient.Token) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Clear(ctx)
	}
	return s.client.Set(ctx, s.key, encodeToken(token), ttl).Err()
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

func encodeToken(token printclient.Token) string {
	return strconv.FormatInt(token.ExpiresAt.Unix(), 10) + ":" + token.Value
}

func decodeToken(raw string) (printclient.Token, error) {
	expires, value, ok := strings.Cut(raw, ":")
	if !ok || value == "" {
		return printclient.Token{}, fmt.Errorf("malformed cached token")
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return printclient.Token{}, fmt.Errorf("malformed cached token expiry: %w", err)
	}
	return printclient.Token{Value: value, ExpiresAt: time.Unix(unix, 0)}, nil
}

var _ printclient.TokenStore = (*RedisTokenStore)(nil)
