package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"school_equipment_portal/app"
	"school_equipment_portal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InviteController struct{ *Srv }

func GetInviteController(s *Srv) *InviteController { return &InviteController{Srv: s} }

// POST /admin/invites
func (ic *InviteController) CreateInvite(c *gin.Context) {
	var in struct {
		Email   string      `json:"email" binding:"required,email"`
		Role    models.Role `json:"role"`        // 默认 student
		Expires int         `json:"expiresDays"` // 默认 1 天
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Role == "" {
		in.Role = models.RoleStudent
	}
	if !in.Role.Valid() {
		c.JSON(http.StatusBadRequest, app.H{"error": "role must be student, staff or admin"})
		return
	}
	if in.Expires <= 0 {
		in.Expires = 1
	}

	token, err := app.NewInviteToken()
	if err != nil {
		respondErr(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	createdBy := c.GetString(app.CtxUsername)
	inv, err := ic.Repo.CreateInvite(ctx, strings.ToLower(in.Email), token, in.Role,
		time.Now().AddDate(0, 0, in.Expires), createdBy)
	if err != nil {
		respondErr(c, err)
		return
	}

	link := app.InviteLink(ic.WebOrigin, token)
	// 邮件失败不影响邀请本身
	if err := ic.Mailer.SendInvite(inv.Email, link, inv.Role, in.Expires); err != nil {
		zap.S().Warnf("[invite email] %v", err)
	}

	c.JSON(http.StatusCreated, app.H{
		"token":  token,
		"link":   link, // 方便开发环境直接点
		"invite": inv,
	})
}
