package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// 固定ウィンドウのカウンタ置き場。プロセスローカル。
// 複数インスタンス構成にするなら共有ストアへの差し替えが必要
// （コンストラクタ注入なので呼び出し側の変更は不要）。
type FixedWindowStore struct {
	mu   sync.Mutex
	data map[string]windowCounter
}

type windowCounter struct {
	windowStart int64
	count       int
}

func NewFixedWindowStore() *FixedWindowStore {
	return &FixedWindowStore{
		data: make(map[string]windowCounter),
	}
}

// Incr はキーのカウンタを加算して（加算後count, resetAt）を返す。
// ウィンドウが変わっていたらカウンタは1から数え直す。
// 「ウィンドウ確認＋加算」はロック内で一度に行う。check-then-actに分けると超過を許す。
func (s *FixedWindowStore) Incr(key string, windowSeconds int, now time.Time) (int, int64) {
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	unix := now.Unix()
	windowStart := unix - unix%int64(windowSeconds)
	resetAt := windowStart + int64(windowSeconds)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[key]
	if !ok || cur.windowStart != windowStart {
		s.data[key] = windowCounter{windowStart: windowStart, count: 1}
		return 1, resetAt
	}

	cur.count++
	s.data[key] = cur
	return cur.count, resetAt
}

// マッチャは（一致したか, エラー）を返す。
// エラーは「不一致扱い」で読み飛ばす＝デフォルトポリシーへのフェイルオープンを
// 明示の契約にする。
type Matcher func(method string, path string) (bool, error)

type Policy struct {
	Name          string
	Match         Matcher
	Limit         int
	WindowSeconds int
}

// パス前方一致のマッチャ。
func PrefixMatcher(prefix string) Matcher {
	return func(_ string, path string) (bool, error) {
		return strings.HasPrefix(path, prefix), nil
	}
}

// パス完全一致のマッチャ。
func PathMatcher(target string) Matcher {
	return func(_ string, path string) (bool, error) {
		return path == target, nil
	}
}

// SelectPolicy は上から順に走査して最初に一致したポリシーを返す。
// マッチャがエラーを返したらそのポリシーは飛ばす。どれにも当たらなければデフォルト。
func SelectPolicy(policies []Policy, method string, path string, defaultLimit int, defaultWindowSeconds int) (limit int, windowSeconds int, name string) {
	for _, p := range policies {
		ok, err := p.Match(method, path)
		if err != nil {
			continue
		}
		if ok {
			return clampMin1(p.Limit), clampMin1(p.WindowSeconds), p.Name
		}
	}
	return clampMin1(defaultLimit), clampMin1(defaultWindowSeconds), "default"
}

func clampMin1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
