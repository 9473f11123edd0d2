package services

import (
	"os"
	"sync/atomic"
	"testing"

	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// 两个 Repo 各自一把进程内锁、各自一个连接池，模拟两个服务实例；
// 只有 Postgres 的行锁能让它们串行。需要 DATABASE_URL。
func TestRowLockSerializesAcrossInstances(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	open := func() *gorm.DB {
		conn, err := db.Open(db.Options{DSN: dsn})
		require.NoError(t, err)
		t.Cleanup(func() {
			if sqlDB, err := conn.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		return conn
	}
	connA, connB := open(), open()
	require.NoError(t, db.Migrate(connA))
	repoA, repoB := db.NewRepo(connA), db.NewRepo(connB)

	eq := &models.Equipment{ID: uuid.NewString(), Name: "Laptop " + uuid.NewString()[:8], Category: "Electronics", Condition: "Good", TotalQuantity: 1, Available: true}
	require.NoError(t, repoA.CreateEquipment(t.Context(), eq))

	var actors []Actor
	for i := 0; i < 8; i++ {
		u := &models.User{ID: uuid.NewString(), Username: uuid.NewString() + "@school.test", DisplayName: "tester", Role: models.RoleStudent}
		require.NoError(t, repoA.CreateUser(t.Context(), u))
		actors = append(actors, Actor{UserID: u.ID, Role: u.Role})
	}
	t.Cleanup(func() {
		connA.Where("equipment_id = ?", eq.ID).Delete(&models.BorrowRequest{})
		connA.Delete(&models.Equipment{ID: eq.ID})
		for _, a := range actors {
			connA.Delete(&models.User{ID: a.UserID})
		}
	})

	lifecycles := []*Lifecycle{NewLifecycle(repoA, nil), NewLifecycle(repoB, nil)}
	var admitted atomic.Int32
	var g errgroup.Group
	for i, who := range actors {
		lm := lifecycles[i%2]
		g.Go(func() error {
			_, err := lm.Submit(t.Context(), who, SubmitInput{
				EquipmentID: eq.ID, Quantity: 1, BorrowDate: d("2025-11-01"), ReturnDate: d("2025-11-02"),
			})
			switch {
			case err == nil:
				admitted.Add(1)
			case apperror.Is(err, apperror.KindConflict):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, admitted.Load())

	active, err := repoA.ActiveRequestsForEquipment(t.Context(), eq.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
