package db

import (
	"errors"
	"testing"

	"school_equipment_portal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSearchEquipment(t *testing.T) {
	r := setupTestDB(t)
	seedEquipment(t, r, "Laptop", 5)
	seedEquipment(t, r, "Laptop Charger", 0)
	ball := &models.Equipment{ID: "9d1c9d7e-8d4b-4f59-9a63-2a3f0c8a1b11", Name: "Football", Category: "Sports", Condition: "Worn", TotalQuantity: 10}
	require.NoError(t, r.CreateEquipment(t.Context(), ball))

	stored, err := r.FindEquipmentByID(t.Context(), ball.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available, "false is stored as given")

	items, err := r.SearchEquipment(t.Context(), EquipmentFilter{Name: "laptop"})
	require.NoError(t, err)
	require.Len(t, items, 1, "empty stock is hidden by default")

	items, err = r.SearchEquipment(t.Context(), EquipmentFilter{Name: "laptop", IncludeEmpty: true})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	no := false
	items, err = r.SearchEquipment(t.Context(), EquipmentFilter{Available: &no})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Football", items[0].Name)

	items, err = r.SearchEquipment(t.Context(), EquipmentFilter{Category: "Sports", Condition: "Worn"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestWithEquipmentLockNotFound(t *testing.T) {
	r := setupTestDB(t)
	called := false
	err := r.WithEquipmentLock(t.Context(), "00000000-0000-0000-0000-000000000000", func(tx *Repo, eq *models.Equipment) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.False(t, called)
}

func TestWithEquipmentLockRollsBack(t *testing.T) {
	r := setupTestDB(t)
	u := seedUser(t, r, models.RoleStudent)
	eq := seedEquipment(t, r, "Laptop", 1)
	boom := errors.New("boom")

	err := r.WithEquipmentLock(t.Context(), eq.ID, func(tx *Repo, locked *models.Equipment) error {
		assert.Equal(t, eq.Name, locked.Name)
		seedRequest(t, tx, u, locked, 1, "2025-01-01", "2025-01-02", models.StatusRequested)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rs, err := r.ActiveRequestsForEquipment(t.Context(), eq.ID)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestDeleteEquipmentCascade(t *testing.T) {
	r := setupTestDB(t)
	u := seedUser(t, r, models.RoleStudent)
	eq := seedEquipment(t, r, "Camera", 2)
	seedRequest(t, r, u, eq, 1, "2025-01-01", "2025-01-02", models.StatusReturned)
	seedRequest(t, r, u, eq, 1, "2025-01-03", "2025-01-04", models.StatusRejected)

	require.NoError(t, r.DeleteEquipmentCascade(t.Context(), eq.ID))

	_, err := r.FindEquipmentByID(t.Context(), eq.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var n int64
	require.NoError(t, r.DB.Model(&models.BorrowRequest{}).Where("equipment_id = ?", eq.ID).Count(&n).Error)
	assert.Zero(t, n)

	assert.ErrorIs(t, r.DeleteEquipmentCascade(t.Context(), eq.ID), gorm.ErrRecordNotFound)
}
