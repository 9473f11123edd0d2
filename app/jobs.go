package app

import (
	"context"
	"time"

	"school_equipment_portal/db"
	"school_equipment_portal/services"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartJobs 定时任务：每天清理过期邀请，每小时扫一遍逾期未还
func (a *App) StartJobs(repo *db.Repo) {
	loc := a.Config.Location
	if loc == nil {
		loc = time.UTC
	}
	a.sched = cron.New(cron.WithLocation(loc))

	_, err := a.sched.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := PurgeExpiredInvites(ctx, repo, time.Now()); err != nil {
			zap.S().Errorf("purge expired invites: %v", err)
		}
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := SweepOverdue(ctx, repo, services.Today(time.Now(), loc)); err != nil {
			zap.S().Errorf("overdue sweep: %v", err)
		}
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

func PurgeExpiredInvites(ctx context.Context, repo *db.Repo, now time.Time) (int64, error) {
	n, err := repo.PurgeExpiredInvites(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.S().Infof("purged %d expired invites", n)
	}
	return n, nil
}

// SweepOverdue 只记日志，状态不自动变更
func SweepOverdue(ctx context.Context, repo *db.Repo, today time.Time) (int, error) {
	rs, err := repo.ListOverdue(ctx, today)
	if err != nil {
		return 0, err
	}
	for _, br := range rs {
		fields := []zap.Field{
			zap.String("request", br.ID),
			zap.String("user", br.UserID),
			zap.String("equipment", br.EquipmentID),
			zap.String("returnDate", services.FormatDate(br.ReturnDate)),
		}
		if br.Equipment != nil {
			fields = append(fields, zap.String("equipmentName", br.Equipment.Name))
		}
		zap.L().Warn("overdue borrow request", fields...)
	}
	return len(rs), nil
}
