package main

import (
	"context"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/ratelimit"
	"app/internal/server"
	"app/internal/token"
	"app/internal/usecase"
	"app/internal/validator"

	"github.com/joho/godotenv"
)

func main() {
	//.envがあれば読む（なくてもよい）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Product{},
		&model.Category{},
		&model.AuditLog{},
	); err != nil {
		panic(err)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	//プロセスローカルなストアはここでnewして注入する
	//（ambientなグローバルにしない。共有ストアへの差し替えはここだけで済む）
	throttle := ratelimit.NewLoginAttemptStore(cfg.LoginMaxAttempts, cfg.LoginWindow)
	rateStore := ratelimit.NewFixedWindowStore()

	//access token issuer
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)

	//Usecase生成
	authValidator := validator.NewAuthValidator()
	authUC := usecase.NewAuthUsecase(userRepo, rtRepo, auditRepo, authValidator, issuer, throttle, cfg.RefreshTokenTTL)
	catalogUC := usecase.NewCatalogUsecase(productRepo, categoryRepo, auditRepo)

	//Handler生成
	authH := handler.NewAuthHandler(authUC)
	catalogH := handler.NewCatalogHandler(catalogUC)

	e := server.New(server.Deps{
		Config:    cfg,
		Auth:      authH,
		Catalog:   catalogH,
		Users:     userRepo,
		Issuer:    issuer,
		RateStore: rateStore,
	})

	//期限切れrefresh tokenの掃除
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if n, err := rtRepo.DeleteExpired(ctx, time.Now()); err == nil && n > 0 {
				e.Logger.Infof("deleted %d expired refresh tokens", n)
			}
			cancel()
		}
	}()

	//Server起動
	if err := server.Start(e, ":"+cfg.Port); err != nil {
		panic(err)
	}
}
