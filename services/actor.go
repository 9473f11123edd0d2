package services

import (
	"school_equipment_portal/apperror"
	"school_equipment_portal/models"
)

// Actor 是调用方身份，由认证中间件提供，这里直接信任
type Actor struct {
	UserID string
	Role   models.Role
}

func (a Actor) Privileged() bool { return a.Role.Privileged() }

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) require() error {
	if a.UserID == "" {
		return apperror.Unauthorized()
	}
	return nil
}

func (a Actor) requirePrivileged() error {
	if err := a.require(); err != nil {
		return err
	}
	if !a.Privileged() {
		return apperror.Forbidden("staff or admin role required")
	}
	return nil
}
