// db/repo_users_admin.go
package db

import (
	"context"

	"school_equipment_portal/models"
)

func (r *Repo) SetUserRole(ctx context.Context, userID string, role models.Role) error {
	return r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("role", role).Error
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Count(&n).Error
	return n, err
}
