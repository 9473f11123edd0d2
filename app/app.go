package app

import (
	"context"
	"strings"
	"time"

	"school_equipment_portal/config"
	"school_equipment_portal/db"
	"school_equipment_portal/session"

	"github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Bus    EventBus.Bus
	Config Config

	appSess *session.AppSessionStore
	sched   *cron.Cron
}

// Config 从环境变量读取
type Config struct {
	DB             db.Options
	RedisAddr      string
	RedisPwd       string
	WebOrigin      string
	RPID           string
	RPOrigins      []string
	SessionTTL     time.Duration // WebAuthn 仪式的临时会话
	AppSessionTTL  time.Duration // 登录后的业务会话
	AdminEmails    []string
	BootstrapEmail string
	JWTSecret      string
	JWTTTL         time.Duration
	LogMode        string
	LogFile        string
	Location       *time.Location
	Port           string
}

// IsAdminEmail ADMIN_EMAILS 里的账号始终按管理员处理
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range c.AdminEmails {
		if a == email {
			return true
		}
	}
	return false
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew() *App {
	cfg := loadConfig()
	InitLogger(cfg.LogMode, cfg.LogFile)

	// --- DB: Postgres，未配置时回退 SQLite ---
	dbConn := db.ConnectDB(cfg.DB)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		zap.S().Fatalf("redis: %v", err)
	}

	// --- WebAuthn RP ---
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "School Equipment Portal",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		zap.S().Fatalf("webauthn: %v", err)
	}

	// --- Gin ---
	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog())
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router: r, DB: dbConn, RDB: rdb, WA: wa, Config: cfg,
		Bus:     EventBus.New(),
		appSess: session.NewAppSessionStore(rdb, cfg.AppSessionTTL),
	}
}

func (a *App) Close() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = zap.L().Sync()
}

func loadConfig() Config {
	ttl := time.Duration(config.GetInt("SESSION_TTL_SECONDS", 600)) * time.Second
	appTTL := time.Duration(config.GetInt("APP_SESSION_TTL_HOURS", 24)) * time.Hour

	origins := config.GetList("RP_ORIGINS", false)
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	loc := time.UTC
	if name := config.Get("TZ_LOCATION", ""); name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		} else {
			zap.S().Warnf("unknown TZ_LOCATION %q, using UTC", name)
		}
	}

	return Config{
		DB: db.Options{
			DSN:        config.Get("DATABASE_URL", ""),
			Host:       config.Get("DB_HOST", ""),
			User:       config.Get("DB_USER", "postgres"),
			Password:   config.Get("DB_PASSWORD", ""),
			Name:       config.Get("DB_NAME", "equipment_portal"),
			Port:       config.Get("DB_PORT", "5432"),
			SQLitePath: config.Get("SQLITE_PATH", "portal.db"),
			Debug:      config.Get("DB_DEBUG", "") == "true",
		},
		RedisAddr:      config.Get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:       config.Get("REDIS_PASSWORD", ""),
		WebOrigin:      config.Get("WEB_ORIGIN", "http://localhost:5173"),
		RPID:           config.Get("RP_ID", "localhost"),
		RPOrigins:      origins,
		SessionTTL:     ttl,
		AppSessionTTL:  appTTL,
		AdminEmails:    config.GetList("ADMIN_EMAILS", true), // 例如: "admin@school.edu,it@school.edu"
		BootstrapEmail: strings.ToLower(config.Get("BOOTSTRAP_ADMIN_EMAIL", "")),
		JWTSecret:      config.Get("JWT_SECRET", "change-me-in-production"),
		JWTTTL:         time.Duration(config.GetInt("JWT_TTL_HOURS", 24)) * time.Hour,
		LogMode:        config.Get("LOG_MODE", "development"),
		LogFile:        config.Get("LOG_FILE", ""),
		Location:       loc,
		Port:           config.Get("PORT", "3001"),
	}
}
