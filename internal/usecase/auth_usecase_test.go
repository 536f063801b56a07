package usecase

import (
	"context"
	"testing"
	"time"

	"app/internal/domain/model"
	"app/internal/ratelimit"
	"app/internal/repository"
	"app/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// =====================
// Mock: UserRepository
// =====================

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

// =====================
// Mock: RefreshTokenRepository
// =====================

type MockRefreshTokenRepository struct {
	mock.Mock
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, rt *model.RefreshToken) error {
	args := m.Called(ctx, rt)
	return args.Error(0)
}

func (m *MockRefreshTokenRepository) FindByToken(ctx context.Context, tok string) (*model.RefreshToken, error) {
	args := m.Called(ctx, tok)
	rt, _ := args.Get(0).(*model.RefreshToken)
	return rt, args.Error(1)
}

func (m *MockRefreshTokenRepository) RevokeByToken(ctx context.Context, tok string) (bool, error) {
	args := m.Called(ctx, tok)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

var _ repository.RefreshTokenRepository = (*MockRefreshTokenRepository)(nil)

// =====================
// Mock: AuditLogRepository
// =====================

type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

var _ repository.AuditLogRepository = (*MockAuditLogRepository)(nil)

// =====================
// Mock: AuthValidator
// =====================

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateRegister(ctx context.Context, email string, phone string, password string) (string, string, error) {
	args := m.Called(ctx, email, phone, password)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockAuthValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

var _ AuthValidator = (*MockAuthValidator)(nil)

// =====================
// helper
// =====================

type authFixture struct {
	users     *MockUserRepository
	rts       *MockRefreshTokenRepository
	audit     *MockAuditLogRepository
	validator *MockAuthValidator
	throttle  *ratelimit.LoginAttemptStore
	uc        *AuthUsecase
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := new(MockUserRepository)
	rts := new(MockRefreshTokenRepository)
	audit := new(MockAuditLogRepository)
	v := new(MockAuthValidator)
	throttle := ratelimit.NewLoginAttemptStore(5, 300*time.Second)
	issuer := token.NewIssuer("test-secret", 30*time.Minute)

	//監査ログはベストエフォートなので全テストで許可しておく
	audit.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &authFixture{
		users:     users,
		rts:       rts,
		audit:     audit,
		validator: v,
		throttle:  throttle,
		uc:        NewAuthUsecase(users, rts, audit, v, issuer, throttle, 7*24*time.Hour),
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)
	return string(hash)
}

func activeUser(t *testing.T, password string) *model.User {
	t.Helper()
	return &model.User{
		ID:           1,
		Email:        "user@x.com",
		Phone:        "5551234567",
		PasswordHash: mustHash(t, password),
		IsActive:     true,
	}
}

// =====================
// Register
// =====================

func TestRegister_Success(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.validator.On("ValidateRegister", ctx, "User@X.com", "0555 123 45 67", "password1").
		Return("user@x.com", "5551234567", nil)
	f.users.On("Create", ctx, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "user@x.com" && u.Phone == "5551234567" && u.IsActive && u.PasswordHash != "password1"
	})).Return(nil)

	out, err := f.uc.Register(ctx, RegisterInput{
		Email:    "User@X.com",
		Phone:    "0555 123 45 67",
		Password: "password1",
		FullName: "Test User",
	})

	assert.NoError(t, err)
	assert.Equal(t, "user@x.com", out.Email)
	assert.Equal(t, "5551234567", out.Phone)
	f.users.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.validator.On("ValidateRegister", ctx, "user@x.com", "5551234567", "password1").
		Return("user@x.com", "5551234567", nil)
	f.users.On("Create", ctx, mock.Anything).Return(repository.ErrUserExists)

	_, err := f.uc.Register(ctx, RegisterInput{Email: "user@x.com", Phone: "5551234567", Password: "password1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_ValidationError(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.validator.On("ValidateRegister", ctx, "bad", "x", "short").
		Return("", "", assert.AnError)

	_, err := f.uc.Register(ctx, RegisterInput{Email: "bad", Phone: "x", Password: "short"})
	assert.ErrorIs(t, err, ErrValidation)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// =====================
// Login
// =====================

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")

	f.validator.On("ValidateLogin", ctx, "user@x.com", "password1").Return(nil)
	f.users.On("FindByEmail", ctx, "user@x.com").Return(user, nil)
	f.rts.On("Create", ctx, mock.MatchedBy(func(rt *model.RefreshToken) bool {
		return rt.UserID == user.ID && rt.Token != "" && rt.UserAgent == "UA" && rt.IP == "1.2.3.4"
	})).Return(nil)

	pair, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "password1"}, "UA", "1.2.3.4")

	assert.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, 1800, pair.ExpiresIn)
	f.rts.AssertExpectations(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")

	f.validator.On("ValidateLogin", ctx, "user@x.com", "wrongpass").Return(nil)
	f.users.On("FindByEmail", ctx, "user@x.com").Return(user, nil)

	_, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "wrongpass"}, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	//失敗が記録されていること
	assert.False(t, f.throttle.IsLimited("user@x.com", time.Now()))
	for i := 0; i < 4; i++ {
		f.throttle.RegisterAttempt("user@x.com", time.Now())
	}
	assert.True(t, f.throttle.IsLimited("user@x.com", time.Now()))
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.validator.On("ValidateLogin", ctx, "ghost@x.com", "password1").Return(nil)
	f.users.On("FindByEmail", ctx, "ghost@x.com").Return(nil, nil)

	_, err := f.uc.Login(ctx, LoginInput{Email: "ghost@x.com", Password: "password1"}, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")
	user.IsActive = false

	f.validator.On("ValidateLogin", ctx, "user@x.com", "password1").Return(nil)
	f.users.On("FindByEmail", ctx, "user@x.com").Return(user, nil)

	_, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "password1"}, "", "")
	assert.ErrorIs(t, err, ErrUserInactive)
}

// シナリオA: 5回失敗したら、正しいパスワードでも6回目は429相当。
func TestLogin_ThrottledAfterMaxAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")

	f.validator.On("ValidateLogin", ctx, mock.Anything, mock.Anything).Return(nil)
	f.users.On("FindByEmail", ctx, "user@x.com").Return(user, nil)

	for i := 0; i < 5; i++ {
		_, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "wrongpass"}, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	//正しいパスワードなのに弾かれる
	_, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "password1"}, "", "")
	assert.ErrorIs(t, err, ErrLoginThrottled)
}

// ログイン成功でスロットルがクリアされること。
func TestLogin_SuccessClearsThrottle(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")

	f.validator.On("ValidateLogin", ctx, mock.Anything, mock.Anything).Return(nil)
	f.users.On("FindByEmail", ctx, "user@x.com").Return(user, nil)
	f.rts.On("Create", ctx, mock.Anything).Return(nil)

	for i := 0; i < 4; i++ {
		_, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "wrongpass"}, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.uc.Login(ctx, LoginInput{Email: "user@x.com", Password: "password1"}, "", "")
	assert.NoError(t, err)

	//クリア後は1からやり直し
	assert.False(t, f.throttle.IsLimited("user@x.com", time.Now()))
}

// =====================
// Refresh
// =====================

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")

	oldRT := &model.RefreshToken{
		ID:        "rt-1",
		UserID:    user.ID,
		Token:     "old-token",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	f.rts.On("FindByToken", ctx, "old-token").Return(oldRT, nil)
	f.users.On("FindByID", ctx, user.ID).Return(user, nil)
	f.rts.On("RevokeByToken", ctx, "old-token").Return(true, nil)
	f.rts.On("Create", ctx, mock.MatchedBy(func(rt *model.RefreshToken) bool {
		return rt.UserID == user.ID && rt.Token != "" && rt.Token != "old-token"
	})).Return(nil)

	pair, err := f.uc.Refresh(ctx, "old-token", "UA", "1.2.3.4")

	assert.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, "old-token", pair.RefreshToken)
	f.rts.AssertExpectations(t)
}

// シナリオC: 一度ローテーションに使ったtokenは二度と通らない。
func TestRefresh_UsedTokenFails(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	revokedRT := &model.RefreshToken{
		ID:        "rt-1",
		UserID:    1,
		Token:     "old-token",
		Revoked:   true,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	f.rts.On("FindByToken", ctx, "old-token").Return(revokedRT, nil)

	_, err := f.uc.Refresh(ctx, "old-token", "", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	f.rts.AssertNotCalled(t, "RevokeByToken", mock.Anything, mock.Anything)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	expiredRT := &model.RefreshToken{
		ID:        "rt-1",
		UserID:    1,
		Token:     "old-token",
		ExpiresAt: time.Now().Add(-time.Second),
	}

	f.rts.On("FindByToken", ctx, "old-token").Return(expiredRT, nil)

	_, err := f.uc.Refresh(ctx, "old-token", "", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_UnknownToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.rts.On("FindByToken", ctx, "nope").Return(nil, repository.ErrRefreshTokenNotFound)

	_, err := f.uc.Refresh(ctx, "nope", "", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

// 同じtokenで同時にリフレッシュが走った場合、条件付きUPDATEに負けた側は失敗する。
func TestRefresh_LostRaceFails(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")

	rt := &model.RefreshToken{
		ID:        "rt-1",
		UserID:    user.ID,
		Token:     "old-token",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	f.rts.On("FindByToken", ctx, "old-token").Return(rt, nil)
	f.users.On("FindByID", ctx, user.ID).Return(user, nil)
	//勝者が先にrevokeを済ませていた
	f.rts.On("RevokeByToken", ctx, "old-token").Return(false, nil)

	_, err := f.uc.Refresh(ctx, "old-token", "", "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	f.rts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// =====================
// Logout
// =====================

func TestLogout_SingleToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.rts.On("RevokeByToken", ctx, "some-token").Return(true, nil)

	err := f.uc.Logout(ctx, 1, "some-token")
	assert.NoError(t, err)
	f.rts.AssertNotCalled(t, "RevokeAllByUserID", mock.Anything, mock.Anything)
}

// 未知・失効済みのtokenを渡しても冪等にno-op。
func TestLogout_UnknownTokenIsNoop(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.rts.On("RevokeByToken", ctx, "unknown").Return(false, nil)

	err := f.uc.Logout(ctx, 1, "unknown")
	assert.NoError(t, err)
}

func TestLogout_AllSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.rts.On("RevokeAllByUserID", ctx, int64(1)).Return(nil)

	err := f.uc.Logout(ctx, 1, "")
	assert.NoError(t, err)
	f.rts.AssertExpectations(t)
}

// =====================
// UpdateAddress
// =====================

func TestUpdateAddress_PartialUpdate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := activeUser(t, "password1")
	user.City = "Istanbul"
	user.District = "Kadikoy"

	city := "Ankara"
	f.users.On("Update", ctx, user).Return(nil)

	out, err := f.uc.UpdateAddress(ctx, user, AddressInput{City: &city})

	assert.NoError(t, err)
	assert.Equal(t, "Ankara", out.City)
	//指定しなかった項目は維持
	assert.Equal(t, "Kadikoy", out.District)
}
