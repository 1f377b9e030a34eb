package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"go-business-hub/internal/event"
	"go-business-hub/internal/metrics"
	"go-business-hub/internal/model"
	"go-business-hub/internal/revocation"
)

const tokenType = "Bearer"

type AuthConfig struct {
	RefreshTTL        time.Duration
	BcryptCost        int
	HashConcurrency   int
	SeedAdminUsername string
	SeedAdminPassword string
	SeedCompanyName   string
}

type AuthService struct {
	users     UserStore
	access    AccessStore
	companies CompanyStore
	tokens    RefreshTokenStore
	revoked   revocation.List
	issuer    *TokenIssuer
	bus       event.Bus
	cfg       AuthConfig
	now       func() time.Time

	// bcrypt is deliberately slow; the semaphore bounds how many comparisons run at once.
	hashSem   *semaphore.Weighted
	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(
	users UserStore,
	access AccessStore,
	companies CompanyStore,
	tokens RefreshTokenStore,
	revoked revocation.List,
	issuer *TokenIssuer,
	bus event.Bus,
	cfg AuthConfig,
) *AuthService {
	if cfg.HashConcurrency <= 0 {
		cfg.HashConcurrency = 1
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	return &AuthService{
		users:     users,
		access:    access,
		companies: companies,
		tokens:    tokens,
		revoked:   revoked,
		issuer:    issuer,
		bus:       bus,
		cfg:       cfg,
		now:       time.Now,
		hashSem:   semaphore.NewWeighted(int64(cfg.HashConcurrency)),
	}
}

// Login verifies credentials and opens a session. Unknown users, wrong passwords and
// disabled accounts all yield model.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username string, password string, origin model.RequestOrigin) (model.LoginResponse, error) {
	username = strings.TrimSpace(username)

	principal, err := s.verifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
			s.publish(event.TypeLoginFailed, "", event.SecurityLog{
				Username:  username,
				IP:        origin.IP,
				UserAgent: origin.UserAgent,
				Detail:    "invalid credentials",
			})
		}
		return model.LoginResponse{}, err
	}

	resp, err := s.openSession(ctx, principal)
	if err != nil {
		return model.LoginResponse{}, err
	}

	metrics.LoginAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	s.publish(event.TypeLoginSucceeded, principal.User.ID, event.SecurityLog{
		Username:  principal.User.Username,
		TenantID:  principal.TenantID(),
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
		Success:   true,
	})

	return resp, nil
}

// Refresh exchanges a refresh token for a new access and refresh token pair.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, origin model.RequestOrigin) (model.LoginResponse, error) {
	rotation, err := s.tokens.Rotate(ctx, strings.TrimSpace(rawRefresh), s.cfg.RefreshTTL)
	switch {
	case errors.Is(err, model.ErrTokenNotFound):
		metrics.RefreshAttempts.WithLabelValues(metrics.ResultNotFound).Inc()
		return model.LoginResponse{}, err
	case errors.Is(err, model.ErrRefreshTokenExpired):
		metrics.RefreshAttempts.WithLabelValues(metrics.ResultExpired).Inc()
		return model.LoginResponse{}, err
	case errors.Is(err, model.ErrRefreshTokenReused):
		metrics.RefreshAttempts.WithLabelValues(metrics.ResultReused).Inc()
		s.handleReuse(ctx, rotation.Previous, origin)
		return model.LoginResponse{}, err
	case err != nil:
		metrics.RefreshAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		return model.LoginResponse{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	user, err := s.users.FindByID(ctx, rotation.Token.UserID)
	if errors.Is(err, model.ErrUserNotFound) || (err == nil && !user.Enabled) {
		// The account went away or was disabled after the token was issued.
		if _, delErr := s.tokens.DeleteByPrincipal(ctx, rotation.Token.UserID); delErr != nil {
			slog.Error("failed to revoke refresh tokens of unavailable user", "user_id", rotation.Token.UserID, "error", delErr)
		}
		metrics.RefreshAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		return model.LoginResponse{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.LoginResponse{}, fmt.Errorf("load refresh token owner: %w", err)
	}

	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return model.LoginResponse{}, err
	}

	access, expiresAt, err := s.issuer.IssueAccessToken(principal)
	if err != nil {
		return model.LoginResponse{}, err
	}

	metrics.RefreshAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	s.publish(event.TypeRefreshSucceeded, user.ID, event.SecurityLog{
		Username:  user.Username,
		TenantID:  principal.TenantID(),
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
		Success:   true,
	})

	return buildLoginResponse(principal, access, expiresAt, rotation.RawToken), nil
}

// Logout revokes the presented access token and the caller's refresh token.
func (s *AuthService) Logout(ctx context.Context, claims *model.AuthClaims, origin model.RequestOrigin) error {
	if claims == nil {
		return model.ErrUnauthorized
	}

	if err := s.revoked.Blacklist(ctx, claims.Token, claims.ExpiresAt); err != nil {
		return fmt.Errorf("blacklist access token: %w", err)
	}
	metrics.Revocations.Inc()

	if _, err := s.tokens.DeleteByPrincipal(ctx, claims.UserID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	s.publish(event.TypeLogout, claims.UserID, event.SecurityLog{
		Username:  claims.Subject,
		TenantID:  claims.TenantID,
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
		Success:   true,
	})
	return nil
}

// ValidateAccessToken runs the token checks of the request gate: signature and expiry,
// the revocation list, and the health of the user's refresh token. Any error means the
// request must be treated as unauthenticated.
func (s *AuthService) ValidateAccessToken(ctx context.Context, raw string) (*model.AuthClaims, error) {
	claims, err := s.issuer.ParseAccessToken(raw)
	if err != nil {
		return nil, err
	}

	blacklisted, err := s.revoked.IsBlacklisted(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("check revocation list: %w", err)
	}
	if blacklisted {
		return nil, model.ErrTokenInvalid
	}

	refresh, err := s.tokens.FindByPrincipal(ctx, claims.UserID)
	switch {
	case errors.Is(err, model.ErrTokenNotFound):
	case err != nil:
		return nil, fmt.Errorf("check refresh token: %w", err)
	case !refresh.Live(s.now()):
		return nil, model.ErrTokenInvalid
	}

	return claims, nil
}

func (s *AuthService) Me(ctx context.Context, claims *model.AuthClaims) (model.UserView, error) {
	if claims == nil {
		return model.UserView{}, model.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.UserView{}, err
	}

	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return model.UserView{}, err
	}
	return principalView(principal), nil
}

// EnsureDefaultAdmin seeds the default company and administrator on an empty database.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	company, err := s.companies.FindOrCreate(ctx, s.cfg.SeedCompanyName, model.PlanFree)
	if err != nil {
		return fmt.Errorf("seed default company: %w", err)
	}

	hash, err := s.hashPassword(ctx, s.cfg.SeedAdminPassword)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	admin := model.User{
		ID:           uuid.NewString(),
		Username:     s.cfg.SeedAdminUsername,
		PasswordHash: hash,
		Enabled:      true,
		CompanyID:    &company.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	if err := s.access.AssignRole(ctx, admin.ID, model.RoleAdmin); err != nil {
		return fmt.Errorf("assign default admin role: %w", err)
	}

	slog.Info("default administrator created", "username", admin.Username, "company", company.Name)
	return nil
}

func (s *AuthService) verifyCredentials(ctx context.Context, username string, password string) (model.Principal, error) {
	if username == "" || password == "" {
		return model.Principal{}, model.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, model.ErrUserNotFound) {
		// Spend the same hashing time as a real comparison so response latency does not
		// reveal which usernames exist.
		_ = s.compareHash(ctx, s.dummy(), password)
		return model.Principal{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.Principal{}, fmt.Errorf("look up user: %w", err)
	}

	if err := s.compareHash(ctx, []byte(user.PasswordHash), password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return model.Principal{}, model.ErrInvalidCredentials
		}
		return model.Principal{}, err
	}

	if !user.Enabled {
		return model.Principal{}, model.ErrInvalidCredentials
	}

	return s.resolvePrincipal(ctx, user)
}

func (s *AuthService) openSession(ctx context.Context, principal model.Principal) (model.LoginResponse, error) {
	access, expiresAt, err := s.issuer.IssueAccessToken(principal)
	if err != nil {
		return model.LoginResponse{}, err
	}

	refresh, _, err := s.tokens.Create(ctx, principal.User.ID, s.cfg.RefreshTTL)
	if err != nil {
		return model.LoginResponse{}, fmt.Errorf("create refresh token: %w", err)
	}

	return buildLoginResponse(principal, access, expiresAt, refresh), nil
}

func (s *AuthService) resolvePrincipal(ctx context.Context, user model.User) (model.Principal, error) {
	roles, perms, err := s.access.Grants(ctx, user.ID)
	if err != nil {
		return model.Principal{}, fmt.Errorf("resolve grants: %w", err)
	}

	principal := model.Principal{User: user, Roles: roles, Permissions: perms}
	if user.CompanyID != nil {
		company, err := s.companies.FindByID(ctx, *user.CompanyID)
		switch {
		case err == nil:
			principal.Company = &company
		case !errors.Is(err, model.ErrCompanyNotFound):
			return model.Principal{}, fmt.Errorf("resolve company: %w", err)
		}
	}
	return principal, nil
}

func (s *AuthService) handleReuse(ctx context.Context, presented model.RefreshToken, origin model.RequestOrigin) {
	if presented.UserID == "" {
		return
	}

	revoked, err := s.tokens.DeleteByPrincipal(ctx, presented.UserID)
	if err != nil {
		slog.Error("failed to revoke sessions after refresh token reuse", "user_id", presented.UserID, "error", err)
	}

	slog.Warn("refresh token reuse detected", "user_id", presented.UserID, "token_id", presented.ID, "ip", origin.IP, "revoked", revoked)

	payload := event.SecurityLog{
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
		Resource:  presented.ID,
		Detail:    "refresh token presented after it was used; all sessions revoked",
	}
	if owner, err := s.users.FindByID(ctx, presented.UserID); err == nil {
		payload.Username = owner.Username
		if owner.CompanyID != nil {
			payload.TenantID = *owner.CompanyID
		}
	}
	s.publish(event.TypeRefreshReuse, presented.UserID, payload)
}

func (s *AuthService) compareHash(ctx context.Context, hash []byte, password string) error {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.hashSem.Release(1)

	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

func (s *AuthService) hashPassword(ctx context.Context, password string) (string, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashSem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cfg.BcryptCost)
		if err != nil {
			slog.Error("failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) publish(t event.Type, actorID string, payload event.SecurityLog) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(t, actorID, payload))
}

func buildLoginResponse(p model.Principal, access string, expiresAt time.Time, refresh string) model.LoginResponse {
	resp := model.LoginResponse{
		AccessToken:    access,
		Type:           tokenType,
		ID:             p.User.ID,
		Username:       p.User.Username,
		Authorities:    p.Authorities(),
		Roles:          p.Roles,
		ExpirationDate: expiresAt,
		RefreshToken:   refresh,
		TenantID:       p.User.CompanyID,
	}
	if p.Company != nil {
		resp.Plan = p.Company.Plan
		resp.LogoURL = p.Company.LogoURL
	}
	return resp
}

func principalView(p model.Principal) model.UserView {
	return model.UserView{
		ID:          p.User.ID,
		Username:    p.User.Username,
		Enabled:     p.User.Enabled,
		TenantID:    p.User.CompanyID,
		Roles:       p.Roles,
		Authorities: p.Authorities(),
	}
}
