package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"app/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

// 全ルートの手前に入るリクエストレートリミッタの設定。
type RateLimitConfig struct {
	Store *ratelimit.FixedWindowStore

	//上から順に走査して最初に一致したものが勝つ
	Policies []ratelimit.Policy

	DefaultLimit         int
	DefaultWindowSeconds int

	//CDN/リバースプロキシ配下ならtrue（ヘッダのクライアントIPを信用する）
	TrustProxyHeaders bool

	//レート制限をかけないパス（ヘルスチェックなど）
	BypassPaths []string
}

type rateLimitedResponse struct {
	Detail string `json:"detail"`
}

// RateLimit は固定ウィンドウでリクエスト数を制限するechoミドルウェア。
// 許可・拒否どちらのレスポンスにもX-RateLimit-*ヘッダを付ける。
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	bypass := make(map[string]struct{}, len(cfg.BypassPaths))
	for _, p := range cfg.BypassPaths {
		bypass[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if _, ok := bypass[path]; ok {
				return next(c)
			}

			//ポリシー決定
			limit, windowSeconds, bucketName := ratelimit.SelectPolicy(
				cfg.Policies, req.Method, path, cfg.DefaultLimit, cfg.DefaultWindowSeconds,
			)

			//バケットキー＝クライアントIP×ポリシー×メソッド×パス前方
			//パスはセグメントを切り詰めてキーの種類が無限に増えないようにする
			ip := ClientIP(req, cfg.TrustProxyHeaders)
			key := fmt.Sprintf("ip:%s|bucket:%s|m:%s|p:%s", ip, bucketName, req.Method, boundedPath(path))

			count, resetAt := cfg.Store.Incr(key, windowSeconds, time.Now())

			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

			if count > limit {
				return c.JSON(http.StatusTooManyRequests, rateLimitedResponse{Detail: "Too Many Requests"})
			}

			return next(c)
		}
	}
}

// ClientIP はクライアントIPを推定する。
// プロキシを信用する場合はCDN系ヘッダ→X-Real-IP→X-Forwarded-For先頭の順で見る。
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, key := range []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"} {
			v := strings.TrimSpace(r.Header.Get(key))
			if v == "" {
				continue
			}
			if key == "X-Forwarded-For" {
				//左端が元のクライアント
				v = strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
				if v == "" {
					continue
				}
			}
			return v
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "0.0.0.0"
	}
	return host
}

// 先頭3セグメントまでに切り詰める（/api/products/123 → /api/products）。
func boundedPath(path string) string {
	segs := strings.Split(path, "/")
	if len(segs) > 3 {
		segs = segs[:3]
	}
	return strings.Join(segs, "/")
}
