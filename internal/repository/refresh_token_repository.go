package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
	"time"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// リフレッシュトークンの保存・取得・失効
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error

	//token文字列の完全一致で1件取得。見つからなければErrRefreshTokenNotFound。
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)

	// revoked=false の行だけを条件付きでrevokedにする。
	// 戻り値は「この呼び出しで遷移したかどうか」。
	// ローテーションの勝者判定に使う。既にrevoked/存在しない場合はfalse（エラーではない）。
	RevokeByToken(ctx context.Context, token string) (bool, error)

	//指定ユーザーの未失効トークンを全て失効させる（logout everywhere）。
	RevokeAllByUserID(ctx context.Context, userID int64) error

	//期限切れ行の掃除。削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
