package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"school_equipment_portal/app"
	"school_equipment_portal/db"
	"school_equipment_portal/models"
	"school_equipment_portal/services"
	"school_equipment_portal/session"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Srv struct {
	WA        *webauthn.WebAuthn
	Repo      *db.Repo
	Sess      *session.Store
	AppSess   *session.AppSessionStore
	Tokens    *app.TokenIssuer
	Lifecycle *services.Lifecycle
	Equipment *services.EquipmentService
	Mailer    *app.Mailer
	WebOrigin string
	Cfg       app.Config
}

func GetSrv(a *app.App, repo *db.Repo) *Srv {
	s := &Srv{
		WA:        a.WA,
		Repo:      repo,
		Tokens:    app.NewTokenIssuer(a.Config.JWTSecret, a.Config.JWTTTL),
		Lifecycle: services.NewLifecycle(repo, a.Bus),
		Equipment: services.NewEquipmentService(repo, a.Bus),
		Mailer:    app.LoadMailer(),
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
	}
	if a.RDB != nil {
		s.Sess = session.NewStore(a.RDB, a.Config.SessionTTL)
		s.AppSess = a.AppSessions()
	}
	return s
}

// --- helpers ---

// 统一设置业务会话 Cookie
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(s.WebOrigin, "https://"),
		MaxAge:   int(maxAge / time.Second),
	})
}

type loginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
}

// 登录成功：登录快照 + Cookie 会话 + API 令牌
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, u *models.User, ip, ua string) (*loginResult, error) {
	if err := s.Repo.TouchUserLogin(ctx, u.ID, ip, ua); err != nil {
		zap.S().Warnf("touch login for %s: %v", u.ID, err) // 不阻塞
	}
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, u.ID, ip, ua); err != nil {
		return nil, err
	}
	s.setAppCookie(w, id, s.AppSess.TTL())

	role := s.effectiveRole(u)
	tok, exp, err := s.Tokens.Issue(u.ID, role)
	if err != nil {
		return nil, err
	}
	return &loginResult{Token: tok, ExpiresAt: exp, UserID: u.ID, Username: u.Username, Role: role}, nil
}

func (s *Srv) effectiveRole(u *models.User) models.Role {
	if s.Cfg.IsAdminEmail(u.Username) {
		return models.RoleAdmin
	}
	return u.Role
}

// WebAuthn: DB user -> waUser
type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { id, _ := uuid.Parse(u.user.ID); return id[:] }
func (u *waUser) WebAuthnName() string                       { return u.user.Username }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.DisplayName }
func (u *waUser) WebAuthnIcon() string                       { return "" }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func fromWaCred(userID string, cred *webauthn.Credential) *models.Credential {
	return &models.Credential{
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
}

func (s *Srv) toWAUser(ctx context.Context, u *models.User) (*waUser, error) {
	cs, err := s.Repo.LoadUserCredentials(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}, nil
}

func (s *Srv) loadWAUserByID(ctx context.Context, id string) (*waUser, error) {
	u, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toWAUser(ctx, u)
}

func (s *Srv) loadWAUserByUsername(ctx context.Context, username string) (*waUser, error) {
	u, err := s.Repo.FindUserByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, err
	}
	return s.toWAUser(ctx, u)
}
