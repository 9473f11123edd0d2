package db

import (
	"context"
	"fmt"
	"time"

	"school_equipment_portal/models"

	"github.com/google/uuid"
)

func (r *Repo) CreateAuditLog(ctx context.Context, l *models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if err := r.DB.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type AuditQuery struct {
	TargetID string
	ActorID  string
	Page     int
	Size     int
}

type PagedAuditLogs struct {
	Total int64             `json:"total"`
	Items []models.AuditLog `json:"items"`
}

func (r *Repo) ListAuditLogs(ctx context.Context, q AuditQuery) (*PagedAuditLogs, error) {
	q.Page, q.Size = normalizePage(q.Page, q.Size, 200)
	tx := r.DB.WithContext(ctx).Model(&models.AuditLog{})
	if q.TargetID != "" {
		tx = tx.Where("target_id = ?", q.TargetID)
	}
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.AuditLog
	if err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.Size).Limit(q.Size).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return &PagedAuditLogs{Total: total, Items: rows}, nil
}
