package middleware

import (
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/repository"
	"app/internal/token"

	"github.com/labstack/echo/v4"
)

// RequireUserがロード済みユーザーを入れるキー
const CtxUserKey = "current_user"

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// RequireUser はbearerトークンを検証してユーザーをロードするミドルウェア。
// 保護ルートはこれを明示的に挟む（暗黙のDIはしない）。
func RequireUser(issuer *token.Issuer, users repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthenticated"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthenticated"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthenticated"))
			}

			//署名と期限の検証。subjectはemail
			subject, err := issuer.Verify(rawToken, time.Now())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("invalid token"))
			}

			//発行後にユーザーが消えている場合は404
			user, err := users.FindByEmail(c.Request().Context(), subject)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, errorJSON("internal error"))
			}
			if user == nil {
				return c.JSON(http.StatusNotFound, errorJSON("user not found"))
			}

			//contextへ保存
			c.Set(CtxUserKey, user)

			return next(c)
		}
	}
}

// RequireAdmin はRequireUserの後段で管理者フラグを確認する。
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthenticated"))
			}

			//一般ユーザーは拒否、管理者だけ許可
			if !user.IsAdmin {
				return c.JSON(http.StatusForbidden, errorJSON("admin only"))
			}

			return next(c)
		}
	}
}

// CurrentUser はRequireUserが入れたユーザーを取り出す。
func CurrentUser(c echo.Context) (*model.User, bool) {
	user, ok := c.Get(CtxUserKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}
