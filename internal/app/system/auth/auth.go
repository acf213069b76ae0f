// Package auth manages cookie sessions and the signed-in actor carried in
// the request context.
//
// The session cookie stores only the user's uid. On every request the user
// document is reloaded and its role resolved through authz, so a role change
// takes effect on the next request without signing out.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	uidKey      = "uid"
	issuedAtKey = "issued_at"
)

// ErrNoUser is returned by an ActorLoader when the uid no longer exists.
var ErrNoUser = errors.New("auth: user not found")

// ActorLoader resolves a uid from the session into a fresh Actor.
type ActorLoader interface {
	LoadActor(ctx context.Context, uid string) (authz.Actor, error)
}

// SessionManager wraps a gorilla cookie store.
type SessionManager struct {
	store  *sessions.CookieStore
	name   string
	log    *zap.Logger
	loader ActorLoader
}

// NewSessionManager builds a cookie store. In production (secure=true)
// cookies are Secure with SameSite=None; in local dev over http use
// secure=false so browsers accept them.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = "handspm-session"
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// SetLoader wires the user lookup used by LoadSessionUser.
func (m *SessionManager) SetLoader(l ActorLoader) { m.loader = l }

// SignIn records uid in a fresh session cookie.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, uid string) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[uidKey] = uid
	sess.Values[issuedAtKey] = time.Now().UTC().Unix()
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	delete(sess.Values, uidKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// LoadSessionUser injects the actor into the context when the session names
// a user that still exists. Otherwise the request continues anonymously.
func (m *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.loader == nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			if scErr, ok := err.(securecookie.Error); ok && scErr.IsDecode() {
				m.log.Debug("discarding undecodable session cookie", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		uid, _ := sess.Values[uidKey].(string)
		if uid == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.loader.LoadActor(r.Context(), uid)
		if err != nil {
			if !errors.Is(err, ErrNoUser) {
				m.log.Warn("load session user failed", zap.String("uid", uid), zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, WithUser(r, &actor))
	})
}

// RequireSignedIn rejects anonymous requests with 401.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			writeError(w, http.StatusUnauthorized, "請先登入")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects anonymous requests with 401 and signed-in
// requests whose permissions fail allow with 403.
func (m *SessionManager) RequirePermission(allow func(authz.Permissions) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "請先登入")
				return
			}
			if !allow(u.Perms) {
				writeError(w, http.StatusForbidden, "權限不足")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the signed-in actor, if any.
func CurrentUser(r *http.Request) (*authz.Actor, bool) {
	u, ok := r.Context().Value(currentUserKey).(*authz.Actor)
	return u, ok && u != nil
}

// WithUser returns r carrying actor in its context.
func WithUser(r *http.Request, actor *authz.Actor) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, actor))
}

// WithTestUser is WithUser for tests in other packages.
func WithTestUser(r *http.Request, actor *authz.Actor) *http.Request {
	return WithUser(r, actor)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
