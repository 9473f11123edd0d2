package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
)

const maxRemarksLen = 255

// 状态流转表；rejected 与 returned 为终态。设置成当前状态视为无变化。
var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusRequested: {models.StatusPending, models.StatusApproved, models.StatusRejected},
	models.StatusPending:   {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:  {models.StatusReturned},
}

func CanTransition(from, to models.RequestStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type SubmitInput struct {
	RequesterID string // 为空时取 Actor 本人
	EquipmentID string
	Quantity    int
	BorrowDate  time.Time
	ReturnDate  time.Time
	Remarks     *string
}

// AmendPatch 每个字段三态：缺省不改；null 仅对 remarks 有意义（清空），其它字段为 null 视为非法
type AmendPatch struct {
	Quantity   Optional[int]                  `json:"quantity"`
	BorrowDate Optional[string]               `json:"borrowDate"`
	ReturnDate Optional[string]               `json:"returnDate"`
	Status     Optional[models.RequestStatus] `json:"status"`
	Remarks    Optional[string]               `json:"remarks"`
}

func (p AmendPatch) Empty() bool {
	return !p.Quantity.Set && !p.BorrowDate.Set && !p.ReturnDate.Set && !p.Status.Set && !p.Remarks.Set
}

func (p AmendPatch) touchesWindow() bool {
	return p.Quantity.Set || p.BorrowDate.Set || p.ReturnDate.Set
}

type Lifecycle struct {
	repo *db.Repo
	bus  EventBus.BusPublisher
}

func NewLifecycle(repo *db.Repo, bus EventBus.BusPublisher) *Lifecycle {
	return &Lifecycle{repo: repo, bus: bus}
}

// Submit 是唯一的创建入口。容量判断与插入在同一个按器材串行化的事务里完成。
func (lm *Lifecycle) Submit(ctx context.Context, actor Actor, in SubmitInput) (*models.BorrowRequest, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	requesterID := in.RequesterID
	if requesterID == "" {
		requesterID = actor.UserID
	}
	if requesterID != actor.UserID && !actor.Privileged() {
		return nil, apperror.Forbidden("cannot submit a borrow request for another user")
	}
	q := AvailabilityQuery{
		EquipmentID: in.EquipmentID,
		Quantity:    in.Quantity,
		BorrowDate:  in.BorrowDate,
		ReturnDate:  in.ReturnDate,
	}
	if err := validateAvailabilityQuery(q); err != nil {
		return nil, err
	}
	remarks, err := normalizeRemarks(in.Remarks)
	if err != nil {
		return nil, err
	}
	if _, err := lm.repo.FindUserByID(ctx, requesterID); err != nil {
		return nil, notFoundOr(err, "requester")
	}

	var created *models.BorrowRequest
	err = lm.repo.WithEquipmentLock(ctx, in.EquipmentID, func(tx *db.Repo, eq *models.Equipment) error {
		d, err := NewReconciler(tx).decide(ctx, eq, q)
		if err != nil {
			return err
		}
		if !d.Admit {
			return apperror.Conflict(d.Reason)
		}
		br := &models.BorrowRequest{
			ID:          uuid.NewString(),
			UserID:      requesterID,
			EquipmentID: eq.ID,
			Quantity:    in.Quantity,
			BorrowDate:  in.BorrowDate,
			ReturnDate:  in.ReturnDate,
			Status:      models.StatusRequested,
			Remarks:     remarks,
		}
		if err := tx.CreateBorrowRequest(ctx, br); err != nil {
			return fmt.Errorf("insert borrow request: %w", err)
		}
		created = br
		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, "equipment")
	}

	publish(lm.bus, Event{
		Topic: TopicBorrowSubmitted, Actor: actor,
		TargetType: TargetBorrowRequest, TargetID: created.ID,
		Detail: describeRequest(created),
	})
	return created, nil
}

// Amend 整个补丁要么全部生效要么都不生效。数量或日期变化且结果仍占用容量时，
// 排除自身重新做一次准入判断。
func (lm *Lifecycle) Amend(ctx context.Context, actor Actor, requestID string, p AmendPatch) (*models.BorrowRequest, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	current, err := lm.repo.FindBorrowRequestByID(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "borrow request")
	}
	if err := authorizeAmend(actor, current, p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return current, nil
	}

	var updated *models.BorrowRequest
	err = lm.repo.WithEquipmentLock(ctx, current.EquipmentID, func(tx *db.Repo, eq *models.Equipment) error {
		// 锁内重读，拿到的才是最终状态
		br, err := tx.FindBorrowRequestByID(ctx, requestID)
		if err != nil {
			return notFoundOr(err, "borrow request")
		}
		if err := authorizeAmend(actor, br, p); err != nil {
			return err
		}
		next, err := applyPatch(*br, p)
		if err != nil {
			return err
		}
		if p.touchesWindow() && next.Status.Active() {
			d, err := NewReconciler(tx).decide(ctx, eq, AvailabilityQuery{
				EquipmentID:      eq.ID,
				Quantity:         next.Quantity,
				BorrowDate:       next.BorrowDate,
				ReturnDate:       next.ReturnDate,
				ExcludeRequestID: br.ID,
			})
			if err != nil {
				return err
			}
			if !d.Admit {
				return apperror.Conflict(d.Reason)
			}
		}
		if err := tx.UpdateBorrowRequest(ctx, &next); err != nil {
			return notFoundOr(err, "borrow request")
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, "equipment")
	}

	publish(lm.bus, Event{
		Topic: TopicBorrowAmended, Actor: actor,
		TargetType: TargetBorrowRequest, TargetID: updated.ID,
		Detail: describeRequest(updated),
	})
	return updated, nil
}

// Cancel 直接删除记录，只会释放容量，不需要重新核算。
// 和 Amend 走同一把器材锁，避免修改落在已删除的记录上。
func (lm *Lifecycle) Cancel(ctx context.Context, actor Actor, requestID string) error {
	if err := actor.require(); err != nil {
		return err
	}
	br, err := lm.repo.FindBorrowRequestByID(ctx, requestID)
	if err != nil {
		return notFoundOr(err, "borrow request")
	}
	if !actor.IsAdmin() && br.UserID != actor.UserID {
		return apperror.Forbidden("only the owner or an admin can cancel this request")
	}
	err = lm.repo.WithEquipmentLock(ctx, br.EquipmentID, func(tx *db.Repo, _ *models.Equipment) error {
		if err := tx.DeleteBorrowRequest(ctx, requestID); err != nil {
			return notFoundOr(err, "borrow request")
		}
		return nil
	})
	if err != nil {
		return notFoundOr(err, "equipment")
	}
	publish(lm.bus, Event{
		Topic: TopicBorrowCancelled, Actor: actor,
		TargetType: TargetBorrowRequest, TargetID: br.ID,
		Detail: describeRequest(br),
	})
	return nil
}

func (lm *Lifecycle) Get(ctx context.Context, actor Actor, requestID string) (*models.BorrowRequest, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	br, err := lm.repo.FindBorrowRequestByID(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "borrow request")
	}
	if !actor.Privileged() && br.UserID != actor.UserID {
		return nil, apperror.Forbidden("not your borrow request")
	}
	return br, nil
}

// List 普通用户只能看到自己的申请
func (lm *Lifecycle) List(ctx context.Context, actor Actor, f db.BorrowRequestFilter) ([]models.BorrowRequest, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperror.InvalidArgument("invalid status %q", f.Status)
	}
	if !actor.Privileged() {
		f.UserID = actor.UserID
	}
	return lm.repo.ListBorrowRequests(ctx, f)
}

// Overdue 已批准、归还日早于 today 仍未归还
func (lm *Lifecycle) Overdue(ctx context.Context, actor Actor, today time.Time) ([]models.BorrowRequest, error) {
	if err := actor.requirePrivileged(); err != nil {
		return nil, err
	}
	return lm.repo.ListOverdue(ctx, CalendarDay(today))
}

func authorizeAmend(actor Actor, br *models.BorrowRequest, p AmendPatch) error {
	if actor.Privileged() {
		return nil
	}
	if br.UserID != actor.UserID {
		return apperror.Forbidden("not your borrow request")
	}
	if p.Status.Set {
		return apperror.Forbidden("only staff or admin can change the status")
	}
	if br.Status != models.StatusRequested {
		return apperror.Forbidden("a %s request can no longer be amended", br.Status)
	}
	return nil
}

// applyPatch 在副本上应用补丁并校验，不落库
func applyPatch(br models.BorrowRequest, p AmendPatch) (models.BorrowRequest, error) {
	if p.touchesWindow() && !br.Status.Active() {
		return br, apperror.InvalidArgument("cannot change quantity or dates of a %s request", br.Status)
	}
	if p.Quantity.Null {
		return br, apperror.InvalidArgument("quantity cannot be null")
	}
	if p.Quantity.HasValue() {
		if p.Quantity.Value <= 0 {
			return br, apperror.InvalidArgument("quantity must be a positive integer")
		}
		br.Quantity = p.Quantity.Value
	}
	if p.BorrowDate.Null {
		return br, apperror.InvalidArgument("borrowDate cannot be null")
	}
	if p.BorrowDate.HasValue() {
		d, err := ParseDate(p.BorrowDate.Value)
		if err != nil {
			return br, err
		}
		br.BorrowDate = d
	}
	if p.ReturnDate.Null {
		return br, apperror.InvalidArgument("returnDate cannot be null")
	}
	if p.ReturnDate.HasValue() {
		d, err := ParseDate(p.ReturnDate.Value)
		if err != nil {
			return br, err
		}
		br.ReturnDate = d
	}
	if err := validateWindow(br.BorrowDate, br.ReturnDate); err != nil {
		return br, err
	}
	if p.Status.Null {
		return br, apperror.InvalidArgument("status cannot be null")
	}
	if p.Status.HasValue() {
		to := p.Status.Value
		if !to.Valid() {
			return br, apperror.InvalidArgument("invalid status %q", to)
		}
		if !CanTransition(br.Status, to) {
			return br, apperror.InvalidArgument("cannot move a request from %s to %s", br.Status, to)
		}
		br.Status = to
	}
	if p.Remarks.Set {
		if p.Remarks.Null {
			br.Remarks = nil
		} else {
			r, err := normalizeRemarks(&p.Remarks.Value)
			if err != nil {
				return br, err
			}
			br.Remarks = r
		}
	}
	return br, nil
}

func normalizeRemarks(s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(t) > maxRemarksLen {
		return nil, apperror.InvalidArgument("remarks must be at most %d characters", maxRemarksLen)
	}
	return &t, nil
}

func describeRequest(br *models.BorrowRequest) string {
	return fmt.Sprintf("equipment=%s quantity=%d window=%s..%s status=%s",
		br.EquipmentID, br.Quantity, FormatDate(br.BorrowDate), FormatDate(br.ReturnDate), br.Status)
}
