package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a silent user stays "online".
const presenceTTL = 120 * time.Second

// Presence tracks which users are currently in which room. It is
// advisory state: the membership controller consults it but never
// depends on it for correctness.
type Presence interface {
	Join(ctx context.Context, roomID, uid string) error
	Leave(ctx context.Context, roomID, uid string) error
	Online(ctx context.Context, roomID string) ([]string, error)
	Heartbeat(ctx context.Context, uid string) error
}

func roomOnlineKey(roomID string) string {
	return fmt.Sprintf("room:%s:online", roomID)
}

func presenceKey(uid string) string {
	return fmt.Sprintf("presence:%s", uid)
}

// RedisPresence keeps a per-room online set plus a TTL'd per-user
// presence key.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(ctx context.Context, redisURL string) (*RedisPresence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPresence{client: client}, nil
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}

func (p *RedisPresence) Join(ctx context.Context, roomID, uid string) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, roomOnlineKey(roomID), uid)
	pipe.Set(ctx, presenceKey(uid), "online", presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Leave(ctx context.Context, roomID, uid string) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, roomOnlineKey(roomID), uid)
	pipe.Del(ctx, presenceKey(uid))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Online(ctx context.Context, roomID string) ([]string, error) {
	return p.client.SMembers(ctx, roomOnlineKey(roomID)).Result()
}

func (p *RedisPresence) Heartbeat(ctx context.Context, uid string) error {
	return p.client.Expire(ctx, presenceKey(uid), presenceTTL).Err()
}

// MemoryPresence is the in-process fallback used when no Redis is
// configured. It has no TTL sweep; entries live until Leave.
type MemoryPresence struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[string]map[string]struct{})}
}

func (p *MemoryPresence) Join(_ context.Context, roomID, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	room, ok := p.rooms[roomID]
	if !ok {
		room = make(map[string]struct{})
		p.rooms[roomID] = room
	}
	room[uid] = struct{}{}
	return nil
}

func (p *MemoryPresence) Leave(_ context.Context, roomID, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	room, ok := p.rooms[roomID]
	if !ok {
		return nil
	}
	delete(room, uid)
	if len(room) == 0 {
		delete(p.rooms, roomID)
	}
	return nil
}

func (p *MemoryPresence) Online(_ context.Context, roomID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	room, ok := p.rooms[roomID]
	if !ok {
		return nil, nil
	}
	online := make([]string, 0, len(room))
	for uid := range room {
		online = append(online, uid)
	}
	slices.Sort(online)
	return online, nil
}

func (p *MemoryPresence) Heartbeat(_ context.Context, _ string) error {
	return nil
}
