package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
)

// ユーザーが見つかりませんを統一
var ErrUserNotFound = errors.New("user not found")

// email / phone のunique制約違反
var ErrUserExists = errors.New("user already exists")

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成。unique違反はErrUserExists。
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。見つからなければnil。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// ユーザー情報の更新=>住所更新・アクティブかどうかなど
	Update(ctx context.Context, user *model.User) error
}
