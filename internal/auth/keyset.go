package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/rs/zerolog"
)

const (
	defaultRefreshInterval  = time.Hour
	defaultRefreshRateLimit = 5 * time.Minute
	defaultRefreshTimeout   = 10 * time.Second
)

// KeySetOptions 配置 KeySetCache。
type KeySetOptions struct {
	Client          *http.Client
	RefreshInterval time.Duration
	// Endpoint 由 issuer 推导 JWKS 地址，为空时使用 <issuer>/.well-known/jwks.json。
	Endpoint func(issuer string) string
	Logger   zerolog.Logger
}

// KeySetCache 按 issuer 缓存远端 JWKS。读无锁，首次创建由互斥锁串行化，
// 同一 issuer 只会有一个后台刷新器。初次拉取失败不会写入缓存。
type KeySetCache struct {
	sets sync.Map // issuer -> *keyfunc.JWKS
	mu   sync.Mutex

	opts   KeySetOptions
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewKeySetCache(opts KeySetOptions) *KeySetCache {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.Endpoint == nil {
		opts.Endpoint = DefaultJWKSEndpoint
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultRefreshTimeout}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KeySetCache{opts: opts, ctx: ctx, cancel: cancel, log: opts.Logger}
}

// DefaultJWKSEndpoint 返回 issuer 约定的 JWKS 地址。
func DefaultJWKSEndpoint(issuer string) string {
	return strings.TrimRight(issuer, "/") + "/.well-known/jwks.json"
}

// Get 返回 issuer 对应的密钥集，必要时同步拉取。
func (c *KeySetCache) Get(issuer string) (*keyfunc.JWKS, error) {
	if v, ok := c.sets.Load(issuer); ok {
		return v.(*keyfunc.JWKS), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.sets.Load(issuer); ok {
		return v.(*keyfunc.JWKS), nil
	}
	if err := c.ctx.Err(); err != nil {
		return nil, fmt.Errorf("key set cache closed: %w", err)
	}

	url := c.opts.Endpoint(issuer)
	log := c.log.With().Str("issuer", issuer).Str("jwks_url", url).Logger()

	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Ctx:               c.ctx,
		Client:            c.opts.Client,
		RefreshInterval:   c.opts.RefreshInterval,
		RefreshRateLimit:  defaultRefreshRateLimit,
		RefreshTimeout:    defaultRefreshTimeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Warn().Err(err).Msg("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks %s: %w", url, err)
	}

	c.sets.Store(issuer, jwks)
	log.Info().Msg("jwks initialized")
	return jwks, nil
}

// Close 停止所有后台刷新器。
func (c *KeySetCache) Close() {
	c.cancel()
	c.sets.Range(func(_, v any) bool {
		v.(*keyfunc.JWKS).EndBackground()
		return true
	})
}
