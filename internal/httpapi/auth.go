package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/identity"
	"posadmin/backend/internal/session"
	"posadmin/backend/internal/store"
	"posadmin/backend/internal/xid"
)

// AuthManager owns the credential lifecycle: signup creates an account plus
// its profile document, login verifies the credential, signs a bearer token,
// and announces the sign-in on the identity event stream so the session
// reconciler picks it up.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	repo     store.Repository
	events   identity.Publisher
}

type adminClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, repo store.Repository, events identity.Publisher) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		repo:     repo,
		events:   events,
	}
}

// Signup registers a credential and its profile document. New accounts always
// get the "user" role; admins are promoted out of band.
func (a *AuthManager) Signup(ctx context.Context, req domain.SignupRequest) (domain.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Profile{}, fmt.Errorf("valid email required")
	}
	if name == "" {
		return domain.Profile{}, fmt.Errorf("name required")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.Profile{}, fmt.Errorf("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("failed to hash password")
	}

	subjectID := xid.New("sub")
	now := time.Now().UTC()
	if err := a.repo.CreateUser(ctx, domain.UserAccount{
		SubjectID: subjectID,
		Email:     email,
		Password:  string(hash),
		CreatedAt: now,
	}); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Profile{}, fmt.Errorf("email already registered")
		}
		return domain.Profile{}, err
	}

	profile, err := a.repo.CreateProfile(ctx, domain.Profile{
		DocID:     subjectID,
		SubjectID: subjectID,
		Email:     email,
		Name:      name,
		Role:      domain.RoleUser,
		CreatedAt: now,
	})
	if err != nil {
		return domain.Profile{}, err
	}

	return *profile, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errors.New("invalid credentials")
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	// The token role comes from the same two-phase resolution the session
	// reconciler uses. An account without a provable role cannot log in.
	profile, err := session.ResolveProfile(ctx, a.repo, user.SubjectID)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if profile == nil || !domain.KnownRole(profile.Role) {
		return domain.LoginResponse{}, errors.New("no role on record for this account")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.SubjectID, profile.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	if err := a.events.Publish(ctx, identity.SignedIn(user.SubjectID)); err != nil {
		log.Printf("[auth] WARN: failed to publish signed-in event for %s: %v", user.SubjectID, err)
	}

	return domain.LoginResponse{
		AccessToken: token,
		SubjectID:   user.SubjectID,
		Role:        profile.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) Logout(ctx context.Context) error {
	return a.events.Publish(ctx, identity.SignedOut())
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &adminClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{SubjectID: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(subjectID, role string, expiresAt time.Time) (string, error) {
	claims := adminClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "posadmin",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
