package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryValue struct {
	data      string
	expiresAt time.Time
}

func (v memoryValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && now.After(v.expiresAt)
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
}

// NewMemory returns an in-process store used when no redis server is
// configured or reachable. Expiry is enforced lazily on access.
func NewMemory() Store {
	return &memoryStore{values: make(map[string]memoryValue)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok || value.expired(time.Now()) {
		delete(s.values, key)
		return "", ErrNotFound{Key: key}
	}
	return value.data, nil
}

func (s *memoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = memoryValue{data: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	value, ok := s.values[key]
	if !ok || value.expired(now) {
		s.values[key] = memoryValue{data: "1"}
		return 1, nil
	}
	count, err := strconv.ParseInt(value.data, 10, 64)
	if err != nil {
		return 0, err
	}
	count++
	value.data = strconv.FormatInt(count, 10)
	s.values[key] = value
	return count, nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok || value.expired(time.Now()) {
		delete(s.values, key)
		return nil
	}
	value.expiresAt = time.Now().Add(ttl)
	s.values[key] = value
	return nil
}

func (s *memoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var keys []string
	for key, value := range s.values {
		if value.expired(now) {
			delete(s.values, key)
			continue
		}
		if globMatch(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// globMatch implements the subset of redis KEYS glob syntax the proxy uses:
// * matches any run of characters, ? matches exactly one, everything else is
// literal. Unlike filepath globbing, * crosses every character, slashes
// included.
func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			pattern = pattern[1:]
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if s == "" || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}

func (s *memoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var removed int64
	for _, key := range keys {
		value, ok := s.values[key]
		if !ok {
			continue
		}
		delete(s.values, key)
		if !value.expired(now) {
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]memoryValue)
	return nil
}
