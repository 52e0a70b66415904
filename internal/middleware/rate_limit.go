package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CounterStore 对 key 自增，并在首次自增时设置过期时间。
type CounterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimit 限制同一来源在指定窗口内的请求数量。
// store 为 nil 时使用进程内计数；多实例部署应传入 RedisStore。
func RateLimit(maxRequests int, window time.Duration, store CounterStore, log zerolog.Logger) func(http.Handler) http.Handler {
	if maxRequests <= 0 || window <= 0 {
		return passthrough
	}
	if store == nil {
		store = NewMemoryStore()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rl:ip:" + clientKey(r)
			count, err := store.IncrWithTTL(r.Context(), key, window)
			if err != nil {
				// 计数后端故障时放行，不让限流拖垮主流程。
				log.Warn().Err(err).Msg("rate limit store unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(maxRequests) {
				log.Info().Str("key", key).Int64("attempts", count).Int("limit", maxRequests).Msg("rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// MemoryStore 是单实例的固定窗口计数器。
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*clientCounter
	now     func() time.Time
}

type clientCounter struct {
	count   int64
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clients: make(map[string]*clientCounter), now: time.Now}
}

func (s *MemoryStore) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.clients[key]
	if !ok || now.After(entry.expires) {
		s.clients[key] = &clientCounter{count: 1, expires: now.Add(ttl)}
		if len(s.clients) > 1024 {
			s.cleanupLocked(now)
		}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

func (s *MemoryStore) cleanupLocked(now time.Time) {
	for key, entry := range s.clients {
		if now.After(entry.expires) {
			delete(s.clients, key)
		}
	}
}

// RedisStore 在 Redis 上做固定窗口计数，供多实例共享。
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient 根据 redis:// URL 创建客户端并检查连通性。
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	key = s.prefix + key
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func clientKey(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
