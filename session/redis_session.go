package session

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// Store 保存 WebAuthn 注册/登录仪式的临时 SessionData
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store { return &Store{rdb: rdb, ttl: ttl} }

// 三类仪式：已登录用户追加凭据（按用户 ID）、登录（按一次性 sid）、邀请注册（按邀请 token）
const (
	ceremonyAddCredential = "wa:add:"
	ceremonyLogin         = "wa:login:"
	ceremonyInvite        = "wa:invite:"
)

func ceremonyKey(kind, id string) string { return keyPrefix + kind + id }

func (s *Store) save(ctx context.Context, kind, id string, sd *webauthn.SessionData) error {
	return setJSON(ctx, s.rdb, ceremonyKey(kind, id), sd, s.ttl)
}

func (s *Store) load(ctx context.Context, kind, id string) (*webauthn.SessionData, error) {
	var sd webauthn.SessionData
	if err := getJSON(ctx, s.rdb, ceremonyKey(kind, id), &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

func (s *Store) del(ctx context.Context, kind, id string) {
	_ = s.rdb.Del(ctx, ceremonyKey(kind, id)).Err()
}

func (s *Store) SaveAddCredential(ctx context.Context, userID string, sd *webauthn.SessionData) error {
	return s.save(ctx, ceremonyAddCredential, userID, sd)
}

func (s *Store) LoadAddCredential(ctx context.Context, userID string) (*webauthn.SessionData, error) {
	return s.load(ctx, ceremonyAddCredential, userID)
}

func (s *Store) DelAddCredential(ctx context.Context, userID string) {
	s.del(ctx, ceremonyAddCredential, userID)
}

func (s *Store) SaveLogin(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, ceremonyLogin, sid, sd)
}

func (s *Store) LoadLogin(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, ceremonyLogin, sid)
}

func (s *Store) DelLogin(ctx context.Context, sid string) { s.del(ctx, ceremonyLogin, sid) }

func (s *Store) SaveInvite(ctx context.Context, token string, sd *webauthn.SessionData) error {
	return s.save(ctx, ceremonyInvite, token, sd)
}

func (s *Store) LoadInvite(ctx context.Context, token string) (*webauthn.SessionData, error) {
	return s.load(ctx, ceremonyInvite, token)
}

func (s *Store) DelInvite(ctx context.Context, token string) { s.del(ctx, ceremonyInvite, token) }
