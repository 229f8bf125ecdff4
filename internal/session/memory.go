package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const (
	memoryShards   = 32
	shardSweepSize = 4096
)

// Memory is the in-process Store used when Redis is unavailable. State is
// sharded by token id so unrelated tokens never contend on one lock.
type Memory struct {
	now    func() time.Time
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	mu        sync.Mutex
	blacklist map[string]time.Time    // jti -> token expiry
	activity  map[string]activityMark // jti -> last seen + token expiry
}

type activityMark struct {
	lastSeen  time.Time
	expiresAt time.Time
}

// NewMemory builds an empty in-process store. The now function defaults to
// time.Now and is injectable for tests.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	m := &Memory{now: now}
	for i := range m.shards {
		m.shards[i] = &memoryShard{
			blacklist: make(map[string]time.Time),
			activity:  make(map[string]activityMark),
		}
	}
	return m
}

func (m *Memory) shard(jti string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jti))
	return m.shards[h.Sum32()%memoryShards]
}

func (m *Memory) Blacklist(_ context.Context, jti string, expiresAt time.Time) error {
	now := m.now()
	if !expiresAt.After(now) {
		return nil
	}
	s := m.shard(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)
	s.blacklist[jti] = expiresAt
	return nil
}

func (m *Memory) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	now := m.now()
	s := m.shard(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.blacklist[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(now) {
		delete(s.blacklist, jti)
		return false, nil
	}
	return true, nil
}

func (m *Memory) RecordActivity(_ context.Context, jti string, expiresAt time.Time) error {
	now := m.now()
	if !expiresAt.After(now) {
		return nil
	}
	s := m.shard(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)
	s.activity[jti] = activityMark{lastSeen: now, expiresAt: expiresAt}
	return nil
}

func (m *Memory) EnsureActivity(_ context.Context, jti string, expiresAt time.Time) error {
	now := m.now()
	if !expiresAt.After(now) {
		return nil
	}
	s := m.shard(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	if mark, ok := s.activity[jti]; ok && mark.expiresAt.After(now) {
		return nil
	}
	s.sweep(now)
	s.activity[jti] = activityMark{lastSeen: now, expiresAt: expiresAt}
	return nil
}

func (m *Memory) LastActivity(_ context.Context, jti string) (time.Time, bool, error) {
	now := m.now()
	s := m.shard(jti)
	s.mu.Lock()
	defer s.mu.Unlock()
	mark, ok := s.activity[jti]
	if !ok {
		return time.Time{}, false, nil
	}
	if !mark.expiresAt.After(now) {
		delete(s.activity, jti)
		return time.Time{}, false, nil
	}
	return mark.lastSeen, true, nil
}

// sweep drops expired entries once a shard grows past the sweep threshold.
// Callers must hold the shard lock.
func (s *memoryShard) sweep(now time.Time) {
	if len(s.blacklist)+len(s.activity) < shardSweepSize {
		return
	}
	for jti, exp := range s.blacklist {
		if !exp.After(now) {
			delete(s.blacklist, jti)
		}
	}
	for jti, mark := range s.activity {
		if !mark.expiresAt.After(now) {
			delete(s.activity, jti)
		}
	}
}
