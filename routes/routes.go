package routes

import (
	"net/http"
	"time"

	"school_equipment_portal/app"
	"school_equipment_portal/controllers"
	"school_equipment_portal/db"
	"school_equipment_portal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes 挂载所有路由，返回共享的 Repo 供启动任务使用
func RegisterRoutes(r *gin.Engine, a *app.App) *db.Repo {
	repo := db.NewRepo(a.DB)
	if err := services.SubscribeAudit(a.Bus, repo); err != nil {
		zap.S().Warnf("audit subscriber: %v", err)
	}

	// 控制器与依赖
	s := controllers.GetSrv(a, repo)
	uc := controllers.GetUserController(repo, s.AppSess, a.Config)
	inviteCtl := controllers.GetInviteController(s)
	equipCtl := controllers.NewEquipmentController(s)
	borrowCtl := controllers.NewBorrowRequestController(s)
	auditCtl := controllers.NewAuditController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Tokens, repo, a.Config)
	adminMW := app.AdminOnly()
	staffMW := app.StaffOnly()
	seenMW := app.TouchLastSeen(repo, a.RDB, 5*time.Minute)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	// ------------------------------
	// WebAuthn（公开+受保护）
	// ------------------------------
	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration)

		wa.POST("/login/begin", s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin)
	}

	waAuth := wa.Group("", authMW, seenMW)
	{
		waAuth.GET("/whoami", s.WhoAmI)
		waAuth.POST("/logout", s.Logout)
	}

	// 已登录用户添加新凭据（绑定手机等）
	creds := r.Group("/api/credentials", authMW, seenMW)
	{
		creds.POST("/add/begin", s.BeginAddCredential)
		creds.POST("/add/finish", s.FinishAddCredential)
	}

	// ------------------------------
	// 邀请（仅管理员）
	// ------------------------------
	admin := r.Group("/admin", authMW, adminMW)
	{
		admin.POST("/invites", inviteCtl.CreateInvite)
	}

	// ------------------------------
	// 用户管理（仅管理员）
	// ------------------------------
	users := r.Group("/api/users", authMW, adminMW)
	{
		users.GET("", uc.ListUsers) // ?q=&role=&page=&size=
		users.GET("/:id", uc.GetUser)
		users.PATCH("/:id/role", uc.SetRole)
		users.DELETE("/:id", uc.DeleteUser)
	}

	// ------------------------------
	// 器材
	// ------------------------------
	equip := r.Group("/api/equipment", authMW, seenMW)
	{
		equip.GET("", equipCtl.List)
		equip.GET("/:id", equipCtl.Get)
		equip.GET("/:id/availability", equipCtl.Availability)

		equip.POST("", staffMW, equipCtl.Create)
		equip.PATCH("/:id", staffMW, equipCtl.Update)
		equip.DELETE("/:id", staffMW, equipCtl.Delete)
	}

	// ------------------------------
	// 借用申请
	// ------------------------------
	borrow := r.Group("/api/borrow-requests", authMW, seenMW)
	{
		// 固定路径在 /:id 之前
		borrow.GET("/overdue", staffMW, borrowCtl.Overdue)
		borrow.GET("/export", staffMW, borrowCtl.Export)

		borrow.GET("", borrowCtl.List) // ?userId=&equipmentId=&status=
		borrow.POST("", borrowCtl.Submit)
		borrow.GET("/:id", borrowCtl.Get)
		borrow.PATCH("/:id", borrowCtl.Amend)
		borrow.DELETE("/:id", borrowCtl.Cancel)
	}

	r.GET("/api/audit", authMW, adminMW, auditCtl.List)

	return repo
}
