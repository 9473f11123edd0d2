package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"school_equipment_portal/db"
	"school_equipment_portal/models"

	"go.uber.org/zap"
)

// BootstrapFirstAdmin 还没有管理员时，为 BOOTSTRAP_ADMIN_EMAIL 生成一次性管理员邀请
func BootstrapFirstAdmin(ctx context.Context, cfg Config, repo *db.Repo) (string, error) {
	if cfg.BootstrapEmail == "" {
		return "", nil
	}
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return "", fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return "", nil // 已经有管理员，跳过
	}

	token, err := NewInviteToken()
	if err != nil {
		return "", err
	}
	if _, err := repo.CreateInvite(ctx, cfg.BootstrapEmail, token, models.RoleAdmin, time.Now().Add(24*time.Hour), "bootstrap"); err != nil {
		return "", fmt.Errorf("bootstrap invite: %w", err)
	}

	link := InviteLink(cfg.WebOrigin, token)
	zap.S().Infof("[BOOTSTRAP] no admin found, created an admin invite for %s", cfg.BootstrapEmail)
	zap.S().Infof("[BOOTSTRAP] open this URL to register the first admin: %s", link)
	return token, nil
}

// NewInviteToken 16 字节随机数的 hex
func NewInviteToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// InviteLink 前端登录页带 inviteToken
func InviteLink(webOrigin, token string) string {
	return strings.TrimRight(webOrigin, "/") + "/login?inviteToken=" + token
}
