package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// 署名不正・形式不正・期限切れを統一
var ErrInvalidToken = errors.New("invalid token")

// アクセストークンの発行と検証。
// ステートレスなので発行済みトークンを個別に失効させることはできない
// （短いTTLで割り切る設計。失効が必要なのはrefresh側）。
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue はsubject（ユーザーのemail）を載せたHS256署名トークンを発行する。
func (i *Issuer) Issue(subject string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.ttl)

	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify は署名と期限を検証してsubjectを返す。
// 期限は渡されたnowで判定する（検証時刻を外から与えてテスト可能にする）。
func (i *Issuer) Verify(raw string, now time.Time) (string, error) {
	//期限は自前で判定するのでライブラリ側のclaims検証は切る
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	tok, err := parser.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return "", ErrInvalidToken
	}
	if now.Unix() >= int64(exp) {
		return "", ErrInvalidToken
	}

	return sub, nil
}
