package controllers

import (
	"net/http"
	"strconv"

	"school_equipment_portal/app"
	"school_equipment_portal/apperror"
	"school_equipment_portal/db"
	"school_equipment_portal/services"

	"github.com/gin-gonic/gin"
)

type EquipmentController struct{ *Srv }

func NewEquipmentController(s *Srv) *EquipmentController { return &EquipmentController{Srv: s} }

// GET /api/equipment?name=&category=&condition=&availability=&includeEmpty=
func (ec *EquipmentController) List(c *gin.Context) {
	f := db.EquipmentFilter{
		Name:      c.Query("name"),
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
	}
	if v := c.Query("availability"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondErr(c, apperror.InvalidArgument("availability must be true or false"))
			return
		}
		f.Available = &b
	}
	f.IncludeEmpty, _ = strconv.ParseBool(c.Query("includeEmpty"))

	items, err := ec.Equipment.Search(c.Request.Context(), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

func (ec *EquipmentController) Get(c *gin.Context) {
	eq, err := ec.Equipment.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, eq)
}

// GET /api/equipment/:id/availability?quantity=2&borrowDate=2025-11-01&returnDate=2025-11-07
func (ec *EquipmentController) Availability(c *gin.Context) {
	qty, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil {
		respondErr(c, apperror.InvalidArgument("quantity must be an integer"))
		return
	}
	borrow, err := services.ParseDate(c.Query("borrowDate"))
	if err != nil {
		respondErr(c, err)
		return
	}
	ret, err := services.ParseDate(c.Query("returnDate"))
	if err != nil {
		respondErr(c, err)
		return
	}
	dec, err := ec.Equipment.Availability(c.Request.Context(), services.AvailabilityQuery{
		EquipmentID:      c.Param("id"),
		Quantity:         qty,
		BorrowDate:       borrow,
		ReturnDate:       ret,
		ExcludeRequestID: c.Query("excludeRequestId"),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, dec)
}

// 员工/管理员创建器材
func (ec *EquipmentController) Create(c *gin.Context) {
	var in struct {
		Name      string `json:"name" binding:"required"`
		Category  string `json:"category" binding:"required"`
		Condition string `json:"condition" binding:"required"`
		Quantity  int    `json:"quantity"`
		Available *bool  `json:"availability"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	eq, err := ec.Equipment.Create(c.Request.Context(), actorOf(c), services.EquipmentInput{
		Name:      in.Name,
		Category:  in.Category,
		Condition: in.Condition,
		Quantity:  in.Quantity,
		Available: in.Available,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, eq)
}

func (ec *EquipmentController) Update(c *gin.Context) {
	var p services.EquipmentPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	eq, err := ec.Equipment.Update(c.Request.Context(), actorOf(c), c.Param("id"), p)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, eq)
}

func (ec *EquipmentController) Delete(c *gin.Context) {
	if err := ec.Equipment.Delete(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
