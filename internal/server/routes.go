package server

import (
	"net/http"

	appmw "app/internal/middleware"

	"github.com/labstack/echo/v4"
)

func registerRoutes(e *echo.Echo, d Deps) {
	//レート制限の対象外
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"app": "ecommerce-api", "status": "ok"})
	})
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	//保護ルート用ミドルウェア（ハンドラ側が明示的に挟む）
	requireUser := appmw.RequireUser(d.Issuer, d.Users)
	requireAdmin := appmw.RequireAdmin()

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout, requireUser)
	auth.GET("/me", d.Auth.Me, requireUser)
	auth.PUT("/address", d.Auth.UpdateAddress, requireUser)

	//カタログ（公開）
	api.GET("/products", d.Catalog.ListProducts)
	api.GET("/products/:id", d.Catalog.GetProduct)
	api.GET("/categories", d.Catalog.ListCategories)

	//管理者
	admin := api.Group("/admin", requireUser, requireAdmin)
	admin.POST("/products", d.Catalog.CreateProduct)
}
