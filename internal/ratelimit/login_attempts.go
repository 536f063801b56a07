package ratelimit

import (
	"sync"
	"time"
)

// ログイン試行のスライディングカウンタ。プロセスローカル。
// 再起動でリセットされるのは既知の制限（仕様どおり）。
type LoginAttemptStore struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration
}

func NewLoginAttemptStore(maxAttempts int, window time.Duration) *LoginAttemptStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LoginAttemptStore{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// RegisterAttempt は失敗時刻を追記して、ウィンドウ外のエントリを捨てる。
func (s *LoginAttemptStore) RegisterAttempt(identifier string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := append(s.attempts[identifier], now)
	s.attempts[identifier] = pruneOld(bucket, now.Add(-s.window))
}

// IsLimited は掃除後のバケット長が上限に達しているかを返す。
func (s *LoginAttemptStore) IsLimited(identifier string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.attempts[identifier]
	if !ok {
		return false
	}

	bucket = pruneOld(bucket, now.Add(-s.window))
	if len(bucket) == 0 {
		delete(s.attempts, identifier)
		return false
	}
	s.attempts[identifier] = bucket

	return len(bucket) >= s.maxAttempts
}

// Clear はログイン成功時にバケットごと消す。
func (s *LoginAttemptStore) Clear(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, identifier)
}

func pruneOld(bucket []time.Time, cutoff time.Time) []time.Time {
	kept := bucket[:0]
	for _, t := range bucket {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
