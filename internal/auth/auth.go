// Package auth guards the operator status UI: bcrypt password checks and an
// encrypted session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/wodify-ap/internal/db"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	cookieName = "wodifyap_session"
	sessionTTL = 12 * time.Hour
)

type Store struct {
	sc *securecookie.SecureCookie
	db db.Querier
}

type ctxKey string

const operatorKey ctxKey = "operator"

func NewStore(d db.Querier, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, db: d}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// CreateOperator adds an operator, or resets the password of an existing one.
func (s *Store) CreateOperator(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return fmt.Errorf("username required and password must be at least 8 characters")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.db.Exec(ctx, `
INSERT INTO operators(username, password_bcrypt) VALUES ($1,$2)
ON CONFLICT (username) DO UPDATE SET password_bcrypt=EXCLUDED.password_bcrypt`, username, hash)
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (Operator, error) {
	var op Operator
	var hash string
	err := s.db.QueryRow(ctx, `SELECT id, username, password_bcrypt FROM operators WHERE username=$1`, username).Scan(&op.ID, &op.Username, &hash)
	if err != nil {
		if db.IsNotFound(db.WrapNotFound(err)) {
			return Operator{}, ErrInvalidCredentials
		}
		return Operator{}, db.WrapNotFound(err)
	}
	if !CheckPassword(hash, password) {
		return Operator{}, ErrInvalidCredentials
	}
	return op, nil
}

type Operator struct {
	ID       int64
	Username string
}

type session struct {
	ID       int64
	Username string
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, op Operator) error {
	encoded, err := s.sc.Encode(cookieName, session{ID: op.ID, Username: op.Username})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Operator, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Operator{}, false
	}
	var sess session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil || sess.ID <= 0 {
		return Operator{}, false
	}
	return Operator{ID: sess.ID, Username: sess.Username}, true
}

func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := s.GetSession(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey, op)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}
