package server

import (
	"app/internal/config"
	"app/internal/handler"
	appmw "app/internal/middleware"
	"app/internal/ratelimit"
	"app/internal/repository"
	"app/internal/token"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// サーバー組み立てに必要な部品。cmd側で全部newして渡す。
type Deps struct {
	Config  config.Config
	Auth    *handler.AuthHandler
	Catalog *handler.CatalogHandler
	Users   repository.UserRepository
	Issuer  *token.Issuer

	//リクエストレートリミッタのカウンタ置き場
	RateStore *ratelimit.FixedWindowStore
}

// New はechoを組み立てて返す。
// ミドルウェアの順番: Recover → Logger → RateLimit → ルート
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	//全ルートの手前で固定ウィンドウのレート制限
	e.Use(appmw.RateLimit(appmw.RateLimitConfig{
		Store: d.RateStore,
		Policies: []ratelimit.Policy{
			//認証系は厳しめ
			{
				Name:          "auth",
				Match:         ratelimit.PrefixMatcher("/api/auth"),
				Limit:         d.Config.AuthRateLimit,
				WindowSeconds: d.Config.AuthRateWindow,
			},
		},
		DefaultLimit:         d.Config.RateLimitDefault,
		DefaultWindowSeconds: d.Config.RateLimitWindow,
		TrustProxyHeaders:    d.Config.TrustProxyHeaders,
		BypassPaths:          []string{"/", "/api/health", "/docs"},
	}))

	registerRoutes(e, d)

	return e
}

func Start(e *echo.Echo, addr string) error {
	return e.Start(addr)
}
