package services

import (
	"errors"

	"school_equipment_portal/apperror"

	"gorm.io/gorm"
)

// notFoundOr 把 gorm 的未找到转换成业务 NotFound，其余错误原样返回
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(what)
	}
	return err
}
