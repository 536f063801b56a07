package usecase

import (
	"app/internal/domain/model"
	"app/internal/ratelimit"
	"app/internal/repository"
	"app/internal/token"

	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	//400 入力不足
	ErrValidation = errors.New("validation error")
	//400 email/phoneが登録済み
	ErrEmailTaken = errors.New("email already registered")
	//401 認証失敗
	ErrInvalidCredentials = errors.New("invalid credentials")
	//429 ログイン試行が上限に達した
	ErrLoginThrottled = errors.New("login throttled")
	//401 refresh tokenが未知・失効・期限切れ
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	//403 停止ユーザー
	ErrUserInactive = errors.New("user inactive")
	//500
	ErrInternal = errors.New("internal error")
)

// refresh tokenのエントロピー（bytes）。総当たりを不可能にする
const refreshTokenBytes = 48

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, email string, phone string, password string) (normEmail string, normPhone string, err error)
	ValidateLogin(ctx context.Context, email string, password string) error
}

type RegisterInput struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AddressInput struct {
	City     *string `json:"city"`
	District *string `json:"district"`
	Address  *string `json:"address"`
}

type UserOut struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"full_name"`
	City      string    `json:"city"`
	District  string    `json:"district"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type AuthUsecase struct {
	users      repository.UserRepository
	rtRepo     repository.RefreshTokenRepository
	auditRepo  repository.AuditLogRepository
	validator  AuthValidator
	issuer     *token.Issuer
	throttle   *ratelimit.LoginAttemptStore
	refreshTTL time.Duration
}

func NewAuthUsecase(
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	auditRepo repository.AuditLogRepository,
	validator AuthValidator,
	issuer *token.Issuer,
	throttle *ratelimit.LoginAttemptStore,
	refreshTTL time.Duration,
) *AuthUsecase {
	return &AuthUsecase{
		users:      users,
		rtRepo:     rtRepo,
		auditRepo:  auditRepo,
		validator:  validator,
		issuer:     issuer,
		throttle:   throttle,
		refreshTTL: refreshTTL,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, req RegisterInput) (*UserOut, error) {
	//入力検証＋正規化（validatorに寄せる）
	email, phone, err := u.validator.ValidateRegister(ctx, req.Email, req.Phone, req.Password)
	if err != nil {
		return nil, ErrValidation
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrInternal
	}

	user := &model.User{
		Email:        email,
		Phone:        phone,
		PasswordHash: string(pwHash),
		FullName:     strings.TrimSpace(req.FullName),
		IsActive:     true,
	}

	//unique違反はrepoがErrUserExistsに寄せてくれる
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrEmailTaken
		}
		return nil, ErrInternal
	}

	out := toUserOut(user)
	return &out, nil
}

func (u *AuthUsecase) Login(ctx context.Context, req LoginInput, userAgent string, ip string) (*TokenPair, error) {
	//入力検証
	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return nil, ErrValidation
	}

	identifier := strings.ToLower(strings.TrimSpace(req.Email))
	now := time.Now()

	//スロットルは認証より先。上限に達していたらbcryptにすら触らない
	if u.throttle.IsLimited(identifier, now) {
		return nil, ErrLoginThrottled
	}

	//ユーザー取得
	user, err := u.users.FindByEmail(ctx, identifier)
	if err != nil {
		return nil, ErrInternal
	}
	if user == nil {
		u.throttle.RegisterAttempt(identifier, now)
		return nil, ErrInvalidCredentials
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		u.throttle.RegisterAttempt(identifier, now)
		return nil, ErrInvalidCredentials
	}

	//成功したらバケットを丸ごと消してクリーンな状態に戻す
	u.throttle.Clear(identifier)

	pair, err := u.issuePair(ctx, user, userAgent, ip, now)
	if err != nil {
		return nil, err
	}

	u.audit(ctx, user.ID, model.AuditActionLogin, userAgent, ip)

	return pair, nil
}

// Refresh は古いtokenを検証→失効→新しいペアを発行する（ローテーション）。
// 失効は発行より必ず先。途中で落ちても「古いtokenが生き残る」ことはない。
func (u *AuthUsecase) Refresh(ctx context.Context, refreshToken string, userAgent string, ip string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	now := time.Now()

	//DB照合
	rt, err := u.rtRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, ErrInternal
	}

	//失効済み
	if rt.Revoked {
		return nil, ErrInvalidRefreshToken
	}

	//期限切れ（保存はしない派生状態。verify時にexpires_atで判定する）
	if !now.Before(rt.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	//user取得
	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil {
		return nil, ErrInternal
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	//条件付きUPDATEで失効。同じtokenの同時リフレッシュは勝者1つだけが通る
	revoked, err := u.rtRepo.RevokeByToken(ctx, rt.Token)
	if err != nil {
		return nil, ErrInternal
	}
	if !revoked {
		//レースに負けた側。古いtokenはもう使えない
		return nil, ErrInvalidRefreshToken
	}

	pair, err := u.issuePair(ctx, user, userAgent, ip, now)
	if err != nil {
		return nil, err
	}

	u.audit(ctx, user.ID, model.AuditActionTokenRotated, userAgent, ip)

	return pair, nil
}

// Logout はtoken指定ならそれだけを、指定なしなら呼び出しユーザーの
// 全tokenを失効させる。
func (u *AuthUsecase) Logout(ctx context.Context, userID int64, refreshToken string) error {
	if refreshToken != "" {
		//冪等。未知・失効済みのtokenでもエラーにしない
		if _, err := u.rtRepo.RevokeByToken(ctx, refreshToken); err != nil {
			return ErrInternal
		}
		u.audit(ctx, userID, model.AuditActionLogout, "", "")
		return nil
	}

	if err := u.rtRepo.RevokeAllByUserID(ctx, userID); err != nil {
		return ErrInternal
	}
	u.audit(ctx, userID, model.AuditActionLogoutAll, "", "")
	return nil
}

// UpdateAddress は指定のあった項目だけを上書きする部分更新。
func (u *AuthUsecase) UpdateAddress(ctx context.Context, user *model.User, req AddressInput) (*UserOut, error) {
	if req.City != nil {
		user.City = *req.City
	}
	if req.District != nil {
		user.District = *req.District
	}
	if req.Address != nil {
		user.Address = *req.Address
	}

	if err := u.users.Update(ctx, user); err != nil {
		return nil, ErrInternal
	}

	out := toUserOut(user)
	return &out, nil
}

// access+refreshのペアを発行する。
func (u *AuthUsecase) issuePair(ctx context.Context, user *model.User, userAgent string, ip string, now time.Time) (*TokenPair, error) {
	//access token発行（sub=email）
	accessToken, expiresAt, err := u.issuer.Issue(user.Email, now)
	if err != nil {
		return nil, ErrInternal
	}

	//refresh token発行（URL-safeな乱数文字列）
	refreshPlain, err := newRefreshTokenString()
	if err != nil {
		return nil, ErrInternal
	}

	rt := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshPlain,
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: now.Add(u.refreshTTL),
	}

	if err := u.rtRepo.Create(ctx, rt); err != nil {
		return nil, ErrInternal
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshPlain,
		TokenType:    "bearer",
		ExpiresIn:    int(expiresAt.Sub(now).Seconds()),
	}, nil
}

// 監査ログはベストエフォート。失敗しても本処理は止めない。
func (u *AuthUsecase) audit(ctx context.Context, userID int64, action model.AuditAction, userAgent string, ip string) {
	_ = u.auditRepo.Create(ctx, &model.AuditLog{
		UserID:    userID,
		Action:    action,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	})
}

// refresh token文字列を生成する。
func newRefreshTokenString() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// model.UserをAPI返却用DTOに変換。
func toUserOut(u *model.User) UserOut {
	return UserOut{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		FullName:  u.FullName,
		City:      u.City,
		District:  u.District,
		Address:   u.Address,
		IsActive:  u.IsActive,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ミドルウェアがロードしたユーザーをそのまま返す用。
func ToUserOut(u *model.User) UserOut {
	return toUserOut(u)
}
