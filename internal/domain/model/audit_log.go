package model

import "time"

// ログイン、トークン失効などのセキュリティイベント。
type AuditAction string

const (
	//ログイン成功。
	AuditActionLogin AuditAction = "LOGIN"
	//refresh tokenのローテーション。
	AuditActionTokenRotated AuditAction = "TOKEN_ROTATED"
	//単一セッションのログアウト。
	AuditActionLogout AuditAction = "LOGOUT"
	//全セッションの失効（logout everywhere）。
	AuditActionLogoutAll AuditAction = "LOGOUT_ALL"
	//商品作成（管理者操作）。
	AuditActionCreateProduct AuditAction = "CREATE_PRODUCT"
)

// 監査ログ。
// 「誰が」「何を」「どこから」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。
	UserID int64 `gorm:"not null;index" json:"user_id"`

	//操作の種類（LOGIN / TOKEN_ROTATED など）。
	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	//接続元（診断用）。
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
