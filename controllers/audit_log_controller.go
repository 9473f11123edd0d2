package controllers

import (
	"net/http"
	"strconv"

	"school_equipment_portal/db"

	"github.com/gin-gonic/gin"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// GET /api/audit?targetId=&actorId=&page=&size=
func (ac *AuditController) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	res, err := ac.Repo.ListAuditLogs(c.Request.Context(), db.AuditQuery{
		TargetID: c.Query("targetId"),
		ActorID:  c.Query("actorId"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
