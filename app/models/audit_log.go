package models

import (
	"encoding/json"
	"time"
)

const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionExport = "export"
)

// AdminAuditLog records a staff action against school data.
type AdminAuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    uint      `gorm:"not null;index" json:"actor_id"`
	SchoolID   uint      `gorm:"not null;index:idx_audit_school_created,priority:1" json:"school_id"`
	Action     string    `gorm:"type:varchar(16);not null" json:"action"`
	ModelLabel string    `gorm:"type:varchar(128);not null" json:"model_label"`
	ObjectID   string    `gorm:"type:varchar(64);default:''" json:"object_id"`
	Changes    string    `gorm:"type:text" json:"changes"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_audit_school_created,priority:2" json:"created_at"`
}

// FieldChange is a single before/after pair stored in Changes.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// SetChanges encodes a field -> change mapping.
func (a *AdminAuditLog) SetChanges(changes map[string]FieldChange) error {
	if len(changes) == 0 {
		a.Changes = ""
		return nil
	}
	b, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	a.Changes = string(b)
	return nil
}
