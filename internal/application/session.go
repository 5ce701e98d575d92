package application

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/clock"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const DefaultTokenTTL = 12 * time.Hour

// Session is the operator currently logged in at this gate.
type Session struct {
	User      domain.User `json:"user"`
	Actor     string      `json:"actor"`
	StartedAt time.Time   `json:"startedAt"`
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 bearer tokens for the API surfaces.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenIssuer uses a random secret when none is configured, which makes
// every token invalid after a restart.
func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) (*TokenIssuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenIssuer{secret: key, ttl: ttl, clock: clk}, nil
}

func (i *TokenIssuer) Issue(u domain.User) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Name: u.Name,
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock.Now))
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

// Login checks the credentials against local users first, then remote
// operators, as they are at this moment. A failed login leaves any existing
// session in place.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	s.mu.Lock()
	candidates := s.state.FindLogin(username)
	s.mu.Unlock()

	var matched *domain.User
	for i := range candidates {
		if candidates[i].PasswordHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].PasswordHash), []byte(password)) == nil {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		s.log.WithField("username", username).Warn("login rejected")
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(*matched)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.mu.Lock()
	s.session = &Session{User: *matched, Actor: matched.ActorLabel(), StartedAt: s.clock.Now()}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user_id": matched.ID, "role": matched.Role}).Info("session started")
	public := *matched
	public.PasswordHash = ""
	return LoginResult{Token: token, ExpiresAt: expires, User: public}, nil
}

func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.log.WithField("user_id", s.session.User.ID).Info("session ended")
	}
	s.session = nil
}

// CurrentSession returns nil when nobody is logged in.
func (s *Service) CurrentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	out := *s.session
	return &out
}

// Authenticate accepts a bearer token only while its user holds the gate
// session.
func (s *Service) Authenticate(token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, fmt.Errorf("%v: %w", err, domain.ErrNotAuthenticated)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.User.ID != claims.Subject {
		return Session{}, domain.ErrNotAuthenticated
	}
	return *s.session, nil
}
