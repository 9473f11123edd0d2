package controllers

import (
	"errors"
	"net/http"

	"school_equipment_portal/app"
	"school_equipment_portal/apperror"
	"school_equipment_portal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// respondErr 把业务错误映射成 HTTP；非业务错误一律 500，只记日志不外泄
func respondErr(c *gin.Context, err error) {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		zap.L().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error", "code": apperror.KindInternal})
		return
	}
	_ = c.Error(err)
	body := app.H{"error": ae.Public(), "code": ae.Kind}
	if d := ae.Detail(); d != "" && d != ae.Public() {
		body["detail"] = d
	}
	c.JSON(ae.Status(), body)
}

func badRequest(c *gin.Context, err error) {
	respondErr(c, apperror.InvalidArgument("%s", err.Error()))
}

func actorOf(c *gin.Context) services.Actor {
	uid, role := app.CurrentUser(c)
	return services.Actor{UserID: uid, Role: role}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(what)
	}
	return err
}
