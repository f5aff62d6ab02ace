package printclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Токен считается истекшим за 5 минут до срока, объявленного провайдером.
const TokenExpiryMargin = 300 * time.Second

type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenStore хранит единственный токен доступа. Load возвращает нулевой Token, если токена нет.
type TokenStore interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, token Token) error
	Clear(ctx context.Context) error
}

// TokenFetcher запрашивает новый токен у провайдера.
type TokenFetcher func(ctx context.Context) (value string, expiresIn time.Duration, err error)

type memoryTokenStore struct {
	mu    sync.RWMutex
	token Token
}

func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{}
}

func (s *memoryTokenStore) Load(_ context.Context) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *memoryTokenStore) Save(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = Token{}
	return nil
}

// TokenCache держит копию токена в памяти процесса перед общим хранилищем.
// Пока копия действительна, хранилище не читается.
type TokenCache struct {
	mu     sync.RWMutex
	local  Token
	store  TokenStore
	fetch  TokenFetcher
	group  singleflight.Group
	now    func() time.Time
	zaplog *zap.Logger
}

func NewTokenCache(store TokenStore, fetch TokenFetcher, zaplog *zap.Logger) *TokenCache {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &TokenCache{
		store:  store,
		fetch:  fetch,
		now:    time.Now,
		zaplog: zaplog,
	}
}

// GetToken отдает закешированный токен без обращения к сети, иначе обновляет его.
// Параллельные обновления схлопываются в один запрос к провайдеру.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	if token, ok := c.cached(ctx); ok {
		return token.Value, nil
	}

	v, err, _ := c.group.Do("access_token", func() (any, error) {
		// токен мог обновить запрос, завершившийся пока мы ждали
		if token, ok := c.cached(ctx); ok {
			return token, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(Token).Value, nil
}

// Invalidate сбрасывает токен, следующий GetToken запросит новый.
func (c *TokenCache) Invalidate(ctx context.Context) error {
	c.setLocal(Token{})
	return c.store.Clear(ctx)
}

func (c *TokenCache) cached(ctx context.Context) (Token, bool) {
	now := c.now()
	c.mu.RLock()
	local := c.local
	c.mu.RUnlock()
	if local.Valid(now) {
		return local, true
	}

	token, err := c.store.Load(ctx)
	if err != nil {
		c.zaplog.Warn("token store load failed", zap.Error(err))
		return Token{}, false
	}
	if !token.Valid(now) {
		return Token{}, false
	}
	// токен мог получить другой экземпляр сервиса
	c.setLocal(token)
	return token, true
}

func (c *TokenCache) setLocal(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = token
}

func (c *TokenCache) refresh(ctx context.Context) (Token, error) {
	issuedAt := c.now()
	value, expiresIn, err := c.fetch(ctx)
	if err != nil {
		// неудача не кешируется, прежнее состояние остается
		return Token{}, err
	}

	token := Token{
		Value:     value,
		ExpiresAt: issuedAt.Add(expiresIn - TokenExpiryMargin),
	}
	c.setLocal(token)
	if err := c.store.Save(ctx, token); err != nil {
		c.zaplog.Warn("token store save failed", zap.Error(err))
	}
	c.zaplog.Info("access token refreshed", zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}
