package handler

import (
	"net/http"

	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	uc *usecase.AuthUsecase
}

// DI
func NewAuthHandler(uc *usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{uc: uc}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req usecase.RegisterInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req usecase.LoginInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	// User-Agentと接続元IPはrefresh tokenに紐付ける（診断用）
	userAgent := c.Request().UserAgent()
	ip := c.RealIP()

	pair, err := h.uc.Login(c.Request().Context(), req, userAgent, ip)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	pair, err := h.uc.Refresh(c.Request().Context(), req.RefreshToken, c.Request().UserAgent(), c.RealIP())
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, pair)
}

type logoutRequest struct {
	//省略した場合は呼び出しユーザーの全セッションを失効
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/logout（要認証）
func (h *AuthHandler) Logout(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
	}

	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if err := h.uc.Logout(c.Request().Context(), user.ID, req.RefreshToken); err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "logged out"})
}

// GET /api/auth/me（要認証）
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
	}

	return c.JSON(http.StatusOK, usecase.ToUserOut(user))
}

// PUT /api/auth/address（要認証）
func (h *AuthHandler) UpdateAddress(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
	}

	var req usecase.AddressInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	out, err := h.uc.UpdateAddress(c.Request().Context(), user, req)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// usecaseのエラーをステータスコードに対応づける。
func writeAuthError(c echo.Context, err error) error {
	switch err {
	case usecase.ErrValidation:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation error"})
	case usecase.ErrEmailTaken:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "email already registered"})
	case usecase.ErrInvalidCredentials:
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
	case usecase.ErrLoginThrottled:
		return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many attempts, retry later"})
	case usecase.ErrInvalidRefreshToken:
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid refresh token"})
	case usecase.ErrUserInactive:
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
