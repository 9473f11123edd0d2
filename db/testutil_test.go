package db

import (
	"testing"
	"time"

	"school_equipment_portal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 每个测试一个独立的内存库
func setupTestDB(t *testing.T) *Repo {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(conn))
	return NewRepo(conn)
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d.UTC()
}

func seedUser(t *testing.T, r *Repo, role models.Role) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Username: uuid.NewString() + "@school.test", DisplayName: "tester", Role: role}
	require.NoError(t, r.CreateUser(t.Context(), u))
	return u
}

func seedEquipment(t *testing.T, r *Repo, name string, qty int) *models.Equipment {
	t.Helper()
	eq := &models.Equipment{ID: uuid.NewString(), Name: name, Category: "Electronics", Condition: "Good", TotalQuantity: qty, Available: true}
	require.NoError(t, r.CreateEquipment(t.Context(), eq))
	return eq
}

func seedRequest(t *testing.T, r *Repo, u *models.User, eq *models.Equipment, qty int, from, to string, st models.RequestStatus) *models.BorrowRequest {
	t.Helper()
	br := &models.BorrowRequest{
		ID: uuid.NewString(), UserID: u.ID, EquipmentID: eq.ID, Quantity: qty,
		BorrowDate: day(from), ReturnDate: day(to), Status: st,
	}
	require.NoError(t, r.CreateBorrowRequest(t.Context(), br))
	return br
}
