package services

import (
	"context"
	"time"

	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

const (
	TopicBorrowSubmitted  = "borrow:submitted"
	TopicBorrowAmended    = "borrow:amended"
	TopicBorrowCancelled  = "borrow:cancelled"
	TopicEquipmentCreated = "equipment:created"
	TopicEquipmentUpdated = "equipment:updated"
	TopicEquipmentDeleted = "equipment:deleted"
)

var auditTopics = []string{
	TopicBorrowSubmitted, TopicBorrowAmended, TopicBorrowCancelled,
	TopicEquipmentCreated, TopicEquipmentUpdated, TopicEquipmentDeleted,
}

const (
	TargetBorrowRequest = "borrow_request"
	TargetEquipment     = "equipment"
)

// Event 在事务提交后发布
type Event struct {
	Topic      string
	Actor      Actor
	TargetType string
	TargetID   string
	Detail     string
}

func publish(bus EventBus.BusPublisher, ev Event) {
	if bus == nil {
		return
	}
	bus.Publish(ev.Topic, ev)
}

// SubscribeAudit 把所有生命周期事件落到审计表。订阅是同步的，写失败只记日志。
func SubscribeAudit(bus EventBus.BusSubscriber, repo *db.Repo) error {
	record := func(ev Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := repo.CreateAuditLog(ctx, &models.AuditLog{
			ActorID:    ev.Actor.UserID,
			ActorRole:  ev.Actor.Role,
			Action:     ev.Topic,
			TargetType: ev.TargetType,
			TargetID:   ev.TargetID,
			Detail:     ev.Detail,
		})
		if err != nil {
			zap.L().Warn("audit log write failed",
				zap.String("action", ev.Topic),
				zap.String("target", ev.TargetID),
				zap.Error(err))
		}
	}
	for _, topic := range auditTopics {
		if err := bus.Subscribe(topic, record); err != nil {
			return err
		}
	}
	return nil
}
