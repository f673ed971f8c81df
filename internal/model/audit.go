package model

import "time"

// 監査イベント名
const (
	AuditAdminBootstrap = "admin.bootstrap"
	AuditAdminCreated   = "admin.created"
	AuditRoleChanged    = "user.role_changed"
	AuditDocumentDelete = "document.deleted"
)

// AuditEntry は監査ログの1件を表す。
type AuditEntry struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	ActorID   string         `json:"actorId,omitempty"`
	Target    string         `json:"target,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
