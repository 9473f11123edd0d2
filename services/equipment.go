package services

import (
	"context"
	"fmt"
	"strings"

	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
)

type EquipmentInput struct {
	Name      string
	Category  string
	Condition string
	Quantity  int
	Available *bool // 缺省为 true
}

type EquipmentPatch struct {
	Name      Optional[string] `json:"name"`
	Category  Optional[string] `json:"category"`
	Condition Optional[string] `json:"condition"`
	Quantity  Optional[int]    `json:"quantity"`
	Available Optional[bool]   `json:"availability"`
}

type EquipmentService struct {
	repo *db.Repo
	bus  EventBus.BusPublisher
}

func NewEquipmentService(repo *db.Repo, bus EventBus.BusPublisher) *EquipmentService {
	return &EquipmentService{repo: repo, bus: bus}
}

func (s *EquipmentService) Create(ctx context.Context, actor Actor, in EquipmentInput) (*models.Equipment, error) {
	if err := actor.requirePrivileged(); err != nil {
		return nil, err
	}
	eq := &models.Equipment{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Category:      strings.TrimSpace(in.Category),
		Condition:     strings.TrimSpace(in.Condition),
		TotalQuantity: in.Quantity,
		Available:     true,
	}
	if in.Available != nil {
		eq.Available = *in.Available
	}
	if eq.Name == "" || eq.Category == "" || eq.Condition == "" {
		return nil, apperror.InvalidArgument("name, category and condition are required")
	}
	if eq.TotalQuantity < 0 {
		return nil, apperror.InvalidArgument("quantity must not be negative")
	}
	if err := s.repo.CreateEquipment(ctx, eq); err != nil {
		return nil, fmt.Errorf("create equipment: %w", err)
	}
	publish(s.bus, Event{
		Topic: TopicEquipmentCreated, Actor: actor,
		TargetType: TargetEquipment, TargetID: eq.ID,
		Detail: describeEquipment(eq),
	})
	return eq, nil
}

func (s *EquipmentService) Get(ctx context.Context, id string) (*models.Equipment, error) {
	eq, err := s.repo.FindEquipmentByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "equipment")
	}
	return eq, nil
}

func (s *EquipmentService) Search(ctx context.Context, f db.EquipmentFilter) ([]models.Equipment, error) {
	return s.repo.SearchEquipment(ctx, f)
}

// Availability 只读探测，不加锁
func (s *EquipmentService) Availability(ctx context.Context, q AvailabilityQuery) (Decision, error) {
	return NewReconciler(s.repo).CheckAvailability(ctx, q)
}

// Update 总数下调时不能低于任一天已占用的峰值
func (s *EquipmentService) Update(ctx context.Context, actor Actor, id string, p EquipmentPatch) (*models.Equipment, error) {
	if err := actor.requirePrivileged(); err != nil {
		return nil, err
	}
	var out *models.Equipment
	err := s.repo.WithEquipmentLock(ctx, id, func(tx *db.Repo, eq *models.Equipment) error {
		for name, f := range map[string]*Optional[string]{"name": &p.Name, "category": &p.Category, "condition": &p.Condition} {
			if !f.Set {
				continue
			}
			v := strings.TrimSpace(f.Value)
			if f.Null || v == "" {
				return apperror.InvalidArgument("%s cannot be empty", name)
			}
			f.Value = v
		}
		if p.Name.Set {
			eq.Name = p.Name.Value
		}
		if p.Category.Set {
			eq.Category = p.Category.Value
		}
		if p.Condition.Set {
			eq.Condition = p.Condition.Value
		}
		if p.Available.Null {
			return apperror.InvalidArgument("availability cannot be null")
		}
		if p.Available.HasValue() {
			eq.Available = p.Available.Value
		}
		if p.Quantity.Null {
			return apperror.InvalidArgument("quantity cannot be null")
		}
		if p.Quantity.HasValue() {
			if p.Quantity.Value < 0 {
				return apperror.InvalidArgument("quantity must not be negative")
			}
			if p.Quantity.Value < eq.TotalQuantity {
				active, err := tx.ActiveRequestsForEquipment(ctx, eq.ID)
				if err != nil {
					return fmt.Errorf("load active requests: %w", err)
				}
				if peak := PeakCommitment(active); p.Quantity.Value < peak {
					return apperror.Conflict(fmt.Sprintf(
						"Equipment: %s has %d units committed on its busiest day, quantity cannot drop to %d",
						eq.Name, peak, p.Quantity.Value))
				}
			}
			eq.TotalQuantity = p.Quantity.Value
		}
		if err := tx.SaveEquipment(ctx, eq); err != nil {
			return fmt.Errorf("save equipment: %w", err)
		}
		out = eq
		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, "equipment")
	}
	publish(s.bus, Event{
		Topic: TopicEquipmentUpdated, Actor: actor,
		TargetType: TargetEquipment, TargetID: out.ID,
		Detail: describeEquipment(out),
	})
	return out, nil
}

// Delete 有占用中的申请时拒绝；否则连同已关闭的申请一起删除
func (s *EquipmentService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := actor.requirePrivileged(); err != nil {
		return err
	}
	var name string
	err := s.repo.WithEquipmentLock(ctx, id, func(tx *db.Repo, eq *models.Equipment) error {
		active, err := tx.ActiveRequestsForEquipment(ctx, eq.ID)
		if err != nil {
			return fmt.Errorf("load active requests: %w", err)
		}
		if len(active) > 0 {
			return apperror.Conflict(fmt.Sprintf(
				"Equipment: %s still has %d active borrow requests", eq.Name, len(active)))
		}
		name = eq.Name
		return tx.DeleteEquipmentCascade(ctx, eq.ID)
	})
	if err != nil {
		return notFoundOr(err, "equipment")
	}
	publish(s.bus, Event{
		Topic: TopicEquipmentDeleted, Actor: actor,
		TargetType: TargetEquipment, TargetID: id,
		Detail: "name=" + name,
	})
	return nil
}

func describeEquipment(eq *models.Equipment) string {
	return fmt.Sprintf("name=%s category=%s condition=%s quantity=%d available=%t",
		eq.Name, eq.Category, eq.Condition, eq.TotalQuantity, eq.Available)
}
