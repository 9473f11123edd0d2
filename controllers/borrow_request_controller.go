package controllers

import (
	"fmt"
	"net/http"
	"time"

	"school_equipment_portal/app"
	"school_equipment_portal/db"
	"school_equipment_portal/models"
	"school_equipment_portal/services"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
)

type BorrowRequestController struct{ *Srv }

func NewBorrowRequestController(s *Srv) *BorrowRequestController {
	return &BorrowRequestController{Srv: s}
}

// GET /api/borrow-requests?userId=&equipmentId=&status=
func (bc *BorrowRequestController) List(c *gin.Context) {
	rs, err := bc.Lifecycle.List(c.Request.Context(), actorOf(c), db.BorrowRequestFilter{
		UserID:      c.Query("userId"),
		EquipmentID: c.Query("equipmentId"),
		Status:      models.RequestStatus(c.Query("status")),
		Preload:     true,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rs})
}

func (bc *BorrowRequestController) Get(c *gin.Context) {
	br, err := bc.Lifecycle.Get(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, br)
}

// POST /api/borrow-requests
func (bc *BorrowRequestController) Submit(c *gin.Context) {
	var in struct {
		UserID      string  `json:"userId"` // 员工代提交时填写
		EquipmentID string  `json:"equipmentId" binding:"required"`
		Quantity    int     `json:"quantity"`
		BorrowDate  string  `json:"borrowDate" binding:"required"`
		ReturnDate  string  `json:"returnDate" binding:"required"`
		Remarks     *string `json:"remarks"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	borrow, err := services.ParseDate(in.BorrowDate)
	if err != nil {
		respondErr(c, err)
		return
	}
	ret, err := services.ParseDate(in.ReturnDate)
	if err != nil {
		respondErr(c, err)
		return
	}
	br, err := bc.Lifecycle.Submit(c.Request.Context(), actorOf(c), services.SubmitInput{
		RequesterID: in.UserID,
		EquipmentID: in.EquipmentID,
		Quantity:    in.Quantity,
		BorrowDate:  borrow,
		ReturnDate:  ret,
		Remarks:     in.Remarks,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, br)
}

// PATCH /api/borrow-requests/:id
func (bc *BorrowRequestController) Amend(c *gin.Context) {
	var p services.AmendPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	br, err := bc.Lifecycle.Amend(c.Request.Context(), actorOf(c), c.Param("id"), p)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, br)
}

func (bc *BorrowRequestController) Cancel(c *gin.Context) {
	if err := bc.Lifecycle.Cancel(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/borrow-requests/overdue
func (bc *BorrowRequestController) Overdue(c *gin.Context) {
	today := services.Today(time.Now(), bc.Cfg.Location)
	rs, err := bc.Lifecycle.Overdue(c.Request.Context(), actorOf(c), today)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rs, "asOf": services.FormatDate(today)})
}

type borrowRequestRow struct {
	ID         string `csv:"id"`
	Requester  string `csv:"requester"`
	Equipment  string `csv:"equipment"`
	Quantity   int    `csv:"quantity"`
	BorrowDate string `csv:"borrow_date"`
	ReturnDate string `csv:"return_date"`
	Status     string `csv:"status"`
	Remarks    string `csv:"remarks"`
	CreatedAt  string `csv:"created_at"`
}

func toExportRow(br models.BorrowRequest) borrowRequestRow {
	row := borrowRequestRow{
		ID:         br.ID,
		Requester:  br.UserID,
		Equipment:  br.EquipmentID,
		Quantity:   br.Quantity,
		BorrowDate: services.FormatDate(br.BorrowDate),
		ReturnDate: services.FormatDate(br.ReturnDate),
		Status:     string(br.Status),
		CreatedAt:  br.CreatedAt.UTC().Format(time.RFC3339),
	}
	if br.User != nil {
		row.Requester = br.User.Username
	}
	if br.Equipment != nil {
		row.Equipment = br.Equipment.Name
	}
	if br.Remarks != nil {
		row.Remarks = *br.Remarks
	}
	return row
}

// GET /api/borrow-requests/export?status=&equipmentId=
func (bc *BorrowRequestController) Export(c *gin.Context) {
	rs, err := bc.Lifecycle.List(c.Request.Context(), actorOf(c), db.BorrowRequestFilter{
		UserID:      c.Query("userId"),
		EquipmentID: c.Query("equipmentId"),
		Status:      models.RequestStatus(c.Query("status")),
		Preload:     true,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	rows := make([]borrowRequestRow, 0, len(rs))
	for _, br := range rs {
		rows = append(rows, toExportRow(br))
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		respondErr(c, err)
		return
	}
	name := fmt.Sprintf("borrow-requests-%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
}
