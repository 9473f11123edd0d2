package db

import (
	"context"
	"time"

	"school_equipment_portal/models"

	"gorm.io/gorm"
)

// OverlapQuery 查询与 [From, To] 闭区间相交的申请
type OverlapQuery struct {
	EquipmentID string
	From        time.Time
	To          time.Time
	ExcludeID   string
	Statuses    []models.RequestStatus // 为空表示不按状态过滤
}

func (r *Repo) OverlappingRequests(ctx context.Context, q OverlapQuery) ([]models.BorrowRequest, error) {
	tx := r.DB.WithContext(ctx).
		Where("equipment_id = ? AND borrow_date <= ? AND return_date >= ?", q.EquipmentID, q.To, q.From)
	if q.ExcludeID != "" {
		tx = tx.Where("id <> ?", q.ExcludeID)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.Statuses)
	}
	var rs []models.BorrowRequest
	if err := tx.Order("borrow_date ASC").Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (r *Repo) ActiveRequestsForEquipment(ctx context.Context, equipmentID string) ([]models.BorrowRequest, error) {
	var rs []models.BorrowRequest
	err := r.DB.WithContext(ctx).
		Where("equipment_id = ? AND status IN ?", equipmentID, models.ActiveStatuses).
		Order("borrow_date ASC").
		Find(&rs).Error
	return rs, err
}

func (r *Repo) CreateBorrowRequest(ctx context.Context, br *models.BorrowRequest) error {
	return r.DB.WithContext(ctx).Create(br).Error
}

func (r *Repo) FindBorrowRequestByID(ctx context.Context, id string) (*models.BorrowRequest, error) {
	var br models.BorrowRequest
	if err := r.DB.WithContext(ctx).First(&br, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &br, nil
}

// UpdateBorrowRequest 写回可修改字段（整行写，调用方已校验全部补丁）。
// 记录已不存在时返回 gorm.ErrRecordNotFound。
func (r *Repo) UpdateBorrowRequest(ctx context.Context, br *models.BorrowRequest) error {
	res := r.DB.WithContext(ctx).Model(&models.BorrowRequest{ID: br.ID}).
		Select("quantity", "borrow_date", "return_date", "status", "remarks", "updated_at").
		Updates(map[string]any{
			"quantity":    br.Quantity,
			"borrow_date": br.BorrowDate,
			"return_date": br.ReturnDate,
			"status":      br.Status,
			"remarks":     br.Remarks,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) DeleteBorrowRequest(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&models.BorrowRequest{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type BorrowRequestFilter struct {
	UserID      string
	EquipmentID string
	Status      models.RequestStatus
	Preload     bool
}

func (r *Repo) ListBorrowRequests(ctx context.Context, f BorrowRequestFilter) ([]models.BorrowRequest, error) {
	q := r.DB.WithContext(ctx).Model(&models.BorrowRequest{}).Order("created_at DESC")
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EquipmentID != "" {
		q = q.Where("equipment_id = ?", f.EquipmentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Preload {
		q = q.Preload("Equipment").Preload("User")
	}
	var rs []models.BorrowRequest
	if err := q.Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

// ListOverdue 已批准但归还日早于 today 的申请
func (r *Repo) ListOverdue(ctx context.Context, today time.Time) ([]models.BorrowRequest, error) {
	var rs []models.BorrowRequest
	err := r.DB.WithContext(ctx).
		Where("status = ? AND return_date < ?", models.StatusApproved, today).
		Preload("Equipment").Preload("User").
		Order("return_date ASC").
		Find(&rs).Error
	return rs, err
}
