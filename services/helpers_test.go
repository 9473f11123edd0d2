package services

import (
	"encoding/json"
	"testing"
	"time"

	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	repo      *db.Repo
	bus       EventBus.Bus
	lifecycle *Lifecycle
	equipment *EquipmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))

	repo := db.NewRepo(conn)
	bus := EventBus.New()
	require.NoError(t, SubscribeAudit(bus, repo))
	return &fixture{
		repo:      repo,
		bus:       bus,
		lifecycle: NewLifecycle(repo, bus),
		equipment: NewEquipmentService(repo, bus),
	}
}

func (f *fixture) user(t *testing.T, role models.Role) Actor {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Username: uuid.NewString() + "@school.test", DisplayName: "tester", Role: role}
	require.NoError(t, f.repo.CreateUser(t.Context(), u))
	return Actor{UserID: u.ID, Role: role}
}

func (f *fixture) item(t *testing.T, name string, qty int) *models.Equipment {
	t.Helper()
	eq := &models.Equipment{ID: uuid.NewString(), Name: name, Category: "Electronics", Condition: "Good", TotalQuantity: qty, Available: true}
	require.NoError(t, f.repo.CreateEquipment(t.Context(), eq))
	return eq
}

// seed 直接写账本，绕过准入判断，用来摆出任意初始状态
func (f *fixture) seed(t *testing.T, owner Actor, eq *models.Equipment, qty int, from, to string, st models.RequestStatus) *models.BorrowRequest {
	t.Helper()
	br := &models.BorrowRequest{
		ID: uuid.NewString(), UserID: owner.UserID, EquipmentID: eq.ID, Quantity: qty,
		BorrowDate: d(from), ReturnDate: d(to), Status: st,
	}
	require.NoError(t, f.repo.CreateBorrowRequest(t.Context(), br))
	return br
}

func (f *fixture) submit(t *testing.T, actor Actor, eq *models.Equipment, qty int, from, to string) (*models.BorrowRequest, error) {
	t.Helper()
	return f.lifecycle.Submit(t.Context(), actor, SubmitInput{
		EquipmentID: eq.ID, Quantity: qty, BorrowDate: d(from), ReturnDate: d(to),
	})
}

func d(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func jsonUnmarshal(s string, v any) error { return json.Unmarshal([]byte(s), v) }
