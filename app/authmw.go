package app

import (
	"net/http"
	"strings"

	"school_equipment_portal/db"
	"school_equipment_portal/models"
	"school_equipment_portal/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

// gin.Context 中的键
const (
	CtxUserID   = "userID"
	CtxUsername = "username"
	CtxRole     = "role"
)

// AuthRequired 先认 Bearer 令牌，其次认会话 Cookie；确认用户仍存在后把身份放进上下文
func AuthRequired(appSess *session.AppSessionStore, tokens *TokenIssuer, repo *db.Repo, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			uid       string
			sessionID string
		)
		if h := c.GetHeader("Authorization"); h != "" {
			parts := strings.SplitN(h, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid authorization header"})
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid token"})
				return
			}
			uid = claims.UserID
		} else {
			ck, err := c.Request.Cookie(AppSessionCookie)
			if err != nil || ck.Value == "" || appSess == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
				return
			}
			as, err := appSess.Get(c.Request.Context(), ck.Value)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
				return
			}
			uid, sessionID = as.UserID, ck.Value
		}

		// 确认用户仍存在，角色以数据库为准（只查一次）
		u, err := repo.FindUserByID(c.Request.Context(), uid)
		if err != nil {
			if sessionID != "" {
				_ = appSess.Delete(c.Request.Context(), sessionID)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		role := u.Role
		if cfg.IsAdminEmail(u.Username) {
			role = models.RoleAdmin
		}
		c.Set(CtxUserID, u.ID)
		c.Set(CtxUsername, u.Username)
		c.Set(CtxRole, role)

		c.Next()
	}
}

// RequireRole 必须在 AuthRequired 之后使用
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, role := CurrentUser(c)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
	}
}

func AdminOnly() gin.HandlerFunc { return RequireRole(models.RoleAdmin) }

// StaffOnly staff 与 admin
func StaffOnly() gin.HandlerFunc { return RequireRole(models.RoleStaff, models.RoleAdmin) }

func CurrentUser(c *gin.Context) (string, models.Role) {
	uid := c.GetString(CtxUserID)
	v, _ := c.Get(CtxRole)
	role, _ := v.(models.Role)
	return uid, role
}
