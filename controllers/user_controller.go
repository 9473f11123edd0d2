package controllers

import (
	"net/http"
	"strconv"

	"school_equipment_portal/app"
	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/models"
	"school_equipment_portal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserController struct {
	repo    *db.Repo
	appSess *session.AppSessionStore
	cfg     app.Config
}

func GetUserController(repo *db.Repo, appSess *session.AppSessionStore, cfg app.Config) *UserController {
	return &UserController{repo: repo, appSess: appSess, cfg: cfg}
}

// GET /api/users?q=alice&role=staff&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	role := models.Role(c.Query("role"))
	if role != "" && !role.Valid() {
		respondErr(c, apperror.InvalidArgument("invalid role %q", role))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.repo.ListUsers(c.Request.Context(), c.Query("q"), role, page, size)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "users": res.Users})
}

// GET /api/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondErr(c, apperror.InvalidArgument("invalid uuid"))
		return
	}
	user, err := uc.repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, notFound(err, "user"))
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user})
}

// PATCH /api/users/:id/role
func (uc *UserController) SetRole(c *gin.Context) {
	id := c.Param("id")
	var in struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if !in.Role.Valid() {
		respondErr(c, apperror.InvalidArgument("invalid role %q", in.Role))
		return
	}
	if uid, _ := app.CurrentUser(c); uid == id {
		respondErr(c, apperror.InvalidArgument("cannot change your own role"))
		return
	}
	target, err := uc.repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, notFound(err, "user"))
		return
	}
	if err := uc.repo.SetUserRole(c.Request.Context(), target.ID, in.Role); err != nil {
		respondErr(c, err)
		return
	}
	target.Role = in.Role
	c.JSON(http.StatusOK, app.H{"user": target})
}

// DELETE /api/users/:id
func (uc *UserController) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	// 不允许删除自己，避免锁死
	if uid, _ := app.CurrentUser(c); uid == id {
		respondErr(c, apperror.InvalidArgument("cannot delete yourself"))
		return
	}
	target, err := uc.repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, notFound(err, "user"))
		return
	}
	if uc.cfg.IsAdminEmail(target.Username) {
		respondErr(c, apperror.Forbidden("cannot delete an admin"))
		return
	}

	// 连带删除凭据与借用申请
	if err := uc.repo.DeleteUserByID(c.Request.Context(), id); err != nil {
		respondErr(c, notFound(err, "user"))
		return
	}
	// 撤销该用户的所有登录会话
	if uc.appSess != nil {
		if err := uc.appSess.RevokeAllForUser(c.Request.Context(), id); err != nil {
			zap.S().Warnf("revoke sessions for %s: %v", id, err)
		}
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
