package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"app/internal/usecase"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")
)

type authValidator struct{}

// Usecaseは interface を依存注入
func NewAuthValidator() usecase.AuthValidator {
	return &authValidator{}
}

// 会員登録の入力を検証して正規化済みのemail/phoneを返す
func (v *authValidator) ValidateRegister(ctx context.Context, email string, phone string, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// 必須チェック
	if email == "" || phone == "" || password == "" {
		return "", "", ErrInvalidInput
	}

	// email形式
	if !isEmailLike(email) {
		return "", "", ErrInvalidInput
	}

	// パスワード最低8文字＋英字と数字を各1つ以上
	if len(password) < 8 {
		return "", "", ErrInvalidInput
	}
	if !hasLetter.MatchString(password) || !hasDigit.MatchString(password) {
		return "", "", ErrInvalidInput
	}

	normPhone, err := normalizePhone(phone)
	if err != nil {
		return "", "", err
	}

	return email, normPhone, nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return ErrInvalidInput
	}
	if !isEmailLike(email) {
		return ErrInvalidInput
	}

	return nil
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	hasLetter    = regexp.MustCompile(`[A-Za-z]`)
	hasDigit     = regexp.MustCompile(`[0-9]`)
	nonDigit     = regexp.MustCompile(`[^0-9]`)
)

func isEmailLike(email string) bool {
	return emailPattern.MatchString(email)
}

// 電話番号を10桁（5XXXXXXXXX）に正規化する。
// 先頭の90（国番号）や0は外す。
func normalizePhone(phone string) (string, error) {
	digits := nonDigit.ReplaceAllString(phone, "")

	if strings.HasPrefix(digits, "90") && len(digits) == 12 {
		digits = digits[2:]
	}
	if strings.HasPrefix(digits, "0") && len(digits) == 11 {
		digits = digits[1:]
	}

	if len(digits) != 10 || !strings.HasPrefix(digits, "5") {
		return "", ErrInvalidInput
	}

	return digits, nil
}
