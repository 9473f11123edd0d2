package db

import (
	"context"
	"fmt"
	"strings"

	"school_equipment_portal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EquipmentFilter struct {
	Name      string
	Category  string
	Condition string
	Available *bool
	// IncludeEmpty 为 false 时只返回 total_quantity > 0 的器材
	IncludeEmpty bool
}

// CreateEquipment 原样写入；Available 的默认值由调用方决定
func (r *Repo) CreateEquipment(ctx context.Context, eq *models.Equipment) error {
	return r.DB.WithContext(ctx).Create(eq).Error
}

func (r *Repo) FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error) {
	var eq models.Equipment
	if err := r.DB.WithContext(ctx).First(&eq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &eq, nil
}

func (r *Repo) SearchEquipment(ctx context.Context, f EquipmentFilter) ([]models.Equipment, error) {
	q := r.DB.WithContext(ctx).Model(&models.Equipment{})
	if s := strings.TrimSpace(f.Name); s != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(f.Category); s != "" {
		q = q.Where("category = ?", s)
	}
	if s := strings.TrimSpace(f.Condition); s != "" {
		q = q.Where("condition = ?", s)
	}
	if f.Available != nil {
		q = q.Where("available = ?", *f.Available)
	}
	if !f.IncludeEmpty {
		q = q.Where("total_quantity > 0")
	}
	var items []models.Equipment
	if err := q.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repo) SaveEquipment(ctx context.Context, eq *models.Equipment) error {
	return r.DB.WithContext(ctx).Save(eq).Error
}

// DeleteEquipmentCascade 删除器材以及其已关闭（rejected/returned）的申请；
// 调用方负责先确认没有占用中的申请。
func (r *Repo) DeleteEquipmentCascade(ctx context.Context, id string) error {
	db := r.DB.WithContext(ctx)
	if err := db.Where("equipment_id = ? AND status NOT IN ?", id, models.ActiveStatuses).
		Delete(&models.BorrowRequest{}).Error; err != nil {
		return fmt.Errorf("delete closed requests: %w", err)
	}
	res := db.Delete(&models.Equipment{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// WithEquipmentLock 串行化同一器材上的写操作：
// 进程内按器材 ID 互斥，再在事务中 SELECT ... FOR UPDATE 锁住器材行（Postgres 下跨进程生效）。
// fn 拿到的是绑定到该事务的 Repo，所有读写都必须走它。
func (r *Repo) WithEquipmentLock(ctx context.Context, equipmentID string, fn func(tx *Repo, eq *models.Equipment) error) error {
	if r.locks != nil {
		unlock := r.locks.Lock(equipmentID)
		defer unlock()
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eq models.Equipment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&eq, "id = ?", equipmentID).Error; err != nil {
			return err
		}
		return fn(&Repo{DB: tx}, &eq)
	})
}
