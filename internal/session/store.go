package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
	"github.com/rimo-de/attend-academy-timekeeper/internal/service"
)

var (
	// ErrInvalidToken is returned for tokens that are malformed, expired,
	// signed with the wrong key, or revoked by logout.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims is the JWT payload carried by a session token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// Store holds the authenticated identity behind each issued token. Logging
// out revokes the token and notifies subscribers so any per-user cached state
// is cleared when the identity goes away.
type Store struct {
	users    service.UserService
	secret   []byte
	tokenTTL time.Duration

	mu     sync.Mutex
	active map[string]int64 // jti -> user id

	onLogout []func(userID int64)
}

func NewStore(users service.UserService, secret string, tokenTTL time.Duration) *Store {
	return &Store{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		active:   make(map[string]int64),
	}
}

// OnLogout registers a callback invoked whenever a user's session ends.
func (s *Store) OnLogout(fn func(userID int64)) {
	s.onLogout = append(s.onLogout, fn)
}

// Register creates a new account. It does not log the user in.
func (s *Store) Register(ctx context.Context, username, password, registerSecret string) (*domain.User, error) {
	return s.users.Register(ctx, username, password, registerSecret)
}

// Login authenticates credentials and issues a session token.
func (s *Store) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expires := now.Add(s.tokenTTL)
	jti := uuid.NewString()

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	s.mu.Lock()
	s.active[jti] = user.ID
	s.mu.Unlock()

	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Logout revokes the session behind the token. Unknown or already-revoked
// tokens are a no-op.
func (s *Store) Logout(token string) {
	claims, err := s.parse(token)
	if err != nil {
		return
	}

	s.mu.Lock()
	userID, ok := s.active[claims.ID]
	if ok {
		delete(s.active, claims.ID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range s.onLogout {
		fn(userID)
	}
}

// CurrentUser resolves the authenticated identity behind a token, if any.
func (s *Store) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, ok := s.active[claims.ID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

func (s *Store) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
