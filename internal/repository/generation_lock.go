package repository

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const generationLockPrefix = "exam:generate:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// GenerationLock 同一候选人的题目生成串行化，避免并发请求重复调用大模型。
// 配置了 Redis 时跨实例生效，否则退化为进程内锁
type GenerationLock struct {
	Redis        *redis.Client
	TTL          time.Duration
	PollInterval time.Duration

	mu    sync.Mutex
	local map[string]chan struct{}
}

func NewGenerationLock(rdb *redis.Client, ttl time.Duration) *GenerationLock {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &GenerationLock{
		Redis:        rdb,
		TTL:          ttl,
		PollInterval: 200 * time.Millisecond,
		local:        make(map[string]chan struct{}),
	}
}

// Acquire 阻塞直到获得锁或 ctx 结束，返回的 release 可重复调用
func (l *GenerationLock) Acquire(ctx context.Context, key string) (func(), error) {
	if l.Redis != nil {
		return l.acquireRedis(ctx, key)
	}
	return l.acquireLocal(ctx, key)
}

func (l *GenerationLock) acquireRedis(ctx context.Context, key string) (func(), error) {
	redisKey := generationLockPrefix + key
	token := uuid.New().String()

	for {
		ok, err := l.Redis.SetNX(ctx, redisKey, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// 使用独立 context，请求取消后仍要释放
					releaseScript.Run(context.Background(), l.Redis, []string{redisKey}, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.PollInterval):
		}
	}
}

func (l *GenerationLock) acquireLocal(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		if l.local == nil {
			l.local = make(map[string]chan struct{})
		}
		held, busy := l.local[key]
		if !busy {
			ch := make(chan struct{})
			l.local[key] = ch
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.local, key)
					l.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-held:
		}
	}
}
