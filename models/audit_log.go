package models

import "time"

// AuditLog 记录借用申请与器材的变更（谁、对什么、做了什么）
type AuditLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"type:uuid;index" json:"actorId"`
	ActorRole  Role      `gorm:"size:20" json:"actorRole"`
	Action     string    `gorm:"size:64;not null;index" json:"action"`
	TargetType string    `gorm:"size:32;not null" json:"targetType"`
	TargetID   string    `gorm:"type:uuid;index" json:"targetId"`
	Detail     string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "portal_audit_log" }
