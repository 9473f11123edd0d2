package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/models"
)

// Ledger 是容量计算需要的只读视图；*db.Repo（含事务内的 Repo）实现它
type Ledger interface {
	FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error)
	FindBorrowRequestByID(ctx context.Context, id string) (*models.BorrowRequest, error)
	OverlappingRequests(ctx context.Context, q db.OverlapQuery) ([]models.BorrowRequest, error)
}

type AvailabilityQuery struct {
	EquipmentID      string
	Quantity         int
	BorrowDate       time.Time
	ReturnDate       time.Time
	ExcludeRequestID string // 修改已有申请时排除它自己
}

// Decision 一次准入判断的结果。Committed 为窗口内占用中的数量。
type Decision struct {
	Admit     bool   `json:"admit"`
	Reason    string `json:"reason,omitempty"`
	Total     int    `json:"total"`
	Committed int    `json:"committed"`
	Available int    `json:"available"`
}

type Reconciler struct {
	ledger Ledger
}

func NewReconciler(l Ledger) *Reconciler { return &Reconciler{ledger: l} }

// CheckAvailability 实时从账本计算，不缓存，也不修改任何记录。
// 只有 requested / pending / approved 计入占用。
func (rc *Reconciler) CheckAvailability(ctx context.Context, q AvailabilityQuery) (Decision, error) {
	if err := validateAvailabilityQuery(q); err != nil {
		return Decision{}, err
	}
	eq, err := rc.ledger.FindEquipmentByID(ctx, q.EquipmentID)
	if err != nil {
		return Decision{}, notFoundOr(err, "equipment")
	}
	return rc.decide(ctx, eq, q)
}

func validateAvailabilityQuery(q AvailabilityQuery) error {
	if q.EquipmentID == "" {
		return apperror.InvalidArgument("equipmentId is required")
	}
	if q.Quantity <= 0 {
		return apperror.InvalidArgument("quantity must be a positive integer")
	}
	return validateWindow(q.BorrowDate, q.ReturnDate)
}

// decide 对已加载（通常已加锁）的器材做判断
func (rc *Reconciler) decide(ctx context.Context, eq *models.Equipment, q AvailabilityQuery) (Decision, error) {
	if q.ExcludeRequestID != "" {
		if _, err := rc.ledger.FindBorrowRequestByID(ctx, q.ExcludeRequestID); err != nil {
			return Decision{}, notFoundOr(err, "borrow request")
		}
	}

	overlapping, err := rc.ledger.OverlappingRequests(ctx, db.OverlapQuery{
		EquipmentID: eq.ID,
		From:        q.BorrowDate,
		To:          q.ReturnDate,
		ExcludeID:   q.ExcludeRequestID,
		Statuses:    models.ActiveStatuses,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("load overlapping requests: %w", err)
	}

	committed := 0
	for _, br := range overlapping {
		committed += br.Quantity
	}
	d := Decision{
		Total:     eq.TotalQuantity,
		Committed: committed,
		Available: eq.TotalQuantity - committed,
	}
	d.Admit = q.Quantity <= d.Available
	if !d.Admit {
		d.Reason = unavailableReason(eq.Name, q.BorrowDate, q.ReturnDate)
	}
	return d, nil
}

func unavailableReason(name string, borrow, ret time.Time) string {
	return fmt.Sprintf("Equipment: %s is not available for the dates %s to %s",
		name, FormatDate(borrow), FormatDate(ret))
}

// PeakCommitment 用扫描线求任意一天同时占用的最大数量（闭区间：归还日当天仍占用）
func PeakCommitment(reqs []models.BorrowRequest) int {
	type edge struct {
		at    time.Time
		delta int
	}
	edges := make([]edge, 0, len(reqs)*2)
	for _, br := range reqs {
		if !br.Status.Active() {
			continue
		}
		edges = append(edges,
			edge{at: br.BorrowDate, delta: br.Quantity},
			edge{at: br.ReturnDate.AddDate(0, 0, 1), delta: -br.Quantity},
		)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta // 同一天先释放再占用
		}
		return edges[i].at.Before(edges[j].at)
	})

	cur, peak := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}
