// Package storetest provides in-memory implementations of the persistence ports for tests.
package storetest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-business-hub/internal/model"
	"go-business-hub/internal/repository"
)

// Stores bundles one fake per port, all sharing a clock.
type Stores struct {
	Users     *Users
	Access    *Access
	Companies *Companies
	Tokens    *RefreshTokens
	Audit     *Audit
}

// New returns empty stores seeded with the built-in roles and permissions.
func New(now func() time.Time) *Stores {
	if now == nil {
		now = time.Now
	}
	tokens := &RefreshTokens{byHash: map[string]model.RefreshToken{}, now: now}
	users := &Users{byID: map[string]model.User{}, tokens: tokens}
	return &Stores{
		Users:     users,
		Access:    newAccess(),
		Companies: &Companies{byID: map[string]model.Company{}},
		Tokens:    tokens,
		Audit:     &Audit{},
	}
}

type Users struct {
	mu     sync.Mutex
	byID   map[string]model.User
	tokens *RefreshTokens

	// LookupErr, when set, is returned by FindByUsername.
	LookupErr error
	Lookups   int
}

func (s *Users) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *Users) FindByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	if s.LookupErr != nil {
		return model.User{}, s.LookupErr
	}
	for _, u := range s.byID {
		if strings.EqualFold(u.Username, strings.TrimSpace(username)) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *Users) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if strings.EqualFold(existing.Username, u.Username) {
			return model.ErrUserAlreadyExists
		}
	}
	s.byID[u.ID] = u
	return nil
}

func (s *Users) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID), nil
}

func (s *Users) List(_ context.Context, q model.UserQuery) ([]model.User, model.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, 0)
	for _, u := range s.byID {
		if q.TenantID != "" && (u.CompanyID == nil || *u.CompanyID != q.TenantID) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(q.Search)) {
			continue
		}
		if q.Enabled != nil && u.Enabled != *q.Enabled {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username) })

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	page := max(q.Page, 1)
	meta := model.Meta{Page: page, Limit: limit, Total: len(out), TotalPages: (len(out) + limit - 1) / limit}
	start := min((page-1)*limit, len(out))
	end := min(start+limit, len(out))
	return out[start:end], meta, nil
}

func (s *Users) SetEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.Enabled = enabled
	s.byID[id] = u
	return nil
}

// Delete cascades to refresh tokens like the foreign key does.
func (s *Users) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if !ok {
		return model.ErrUserNotFound
	}
	_, _ = s.tokens.DeleteByPrincipal(ctx, id)
	return nil
}

// Add inserts a user directly, for fixtures.
func (s *Users) Add(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.ID] = u
}

type Access struct {
	mu        sync.Mutex
	rolePerms map[string][]string
	userRoles map[string][]string
}

func newAccess() *Access {
	all := []string{
		model.PermReadUsers, model.PermUpdateUsers, model.PermDeleteUsers, model.PermReadRoles,
		model.PermReadPermissions, model.PermReadCompany, model.PermManageCompanies, model.PermReadAudit,
	}
	admin := slices.DeleteFunc(slices.Clone(all), func(p string) bool { return p == model.PermManageCompanies })
	return &Access{
		rolePerms: map[string][]string{
			model.RoleSuperAdmin: all,
			model.RoleAdmin:      admin,
			model.RoleUser:       {model.PermReadCompany},
		},
		userRoles: map[string][]string{},
	}
}

func (s *Access) Grants(_ context.Context, userID string) ([]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := slices.Clone(s.userRoles[userID])
	sort.Strings(roles)
	perms := make([]string, 0)
	for _, role := range roles {
		for _, p := range s.rolePerms[role] {
			if !slices.Contains(perms, p) {
				perms = append(perms, p)
			}
		}
	}
	sort.Strings(perms)
	return roles, perms, nil
}

func (s *Access) AssignRole(_ context.Context, userID string, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolePerms[roleName]; !ok {
		return model.ErrRoleNotFound
	}
	if !slices.Contains(s.userRoles[userID], roleName) {
		s.userRoles[userID] = append(s.userRoles[userID], roleName)
	}
	return nil
}

func (s *Access) ListRoles(context.Context) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Role, 0, len(s.rolePerms))
	for name, perms := range s.rolePerms {
		out = append(out, model.Role{ID: strings.ToLower(name), Name: name, Permissions: slices.Sorted(slices.Values(perms))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Access) ListPermissions(context.Context) ([]model.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Permission, 0)
	for _, p := range s.rolePerms[model.RoleSuperAdmin] {
		out = append(out, model.Permission{ID: strings.ToLower(p), Name: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type Companies struct {
	mu   sync.Mutex
	byID map[string]model.Company
}

func (s *Companies) FindByID(_ context.Context, id string) (model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Company{}, model.ErrCompanyNotFound
	}
	return c, nil
}

func (s *Companies) FindOrCreate(_ context.Context, name string, plan string) (model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	c := model.Company{ID: uuid.NewString(), Name: name, Plan: plan, CreatedAt: time.Now().UTC()}
	s.byID[c.ID] = c
	return c, nil
}

func (s *Companies) List(context.Context) ([]model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Company, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RefreshTokens mirrors the transactional semantics of the SQL store under one mutex.
type RefreshTokens struct {
	mu     sync.Mutex
	byHash map[string]model.RefreshToken
	now    func() time.Time

	// Rotations counts calls to Rotate.
	Rotations int
}

func (s *RefreshTokens) Create(_ context.Context, userID string, ttl time.Duration) (string, model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, t := s.replaceLocked(userID, ttl)
	return raw, t, nil
}

func (s *RefreshTokens) FindByPrincipal(_ context.Context, userID string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.byHash {
		if t.UserID == userID {
			return t, nil
		}
	}
	return model.RefreshToken{}, model.ErrTokenNotFound
}

func (s *RefreshTokens) Rotate(_ context.Context, raw string, ttl time.Duration) (model.Rotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rotations++

	hash := repository.HashToken(raw)
	current, ok := s.byHash[hash]
	if !ok {
		return model.Rotation{}, model.ErrTokenNotFound
	}
	rotation := model.Rotation{Previous: current}

	if current.Expired(s.now()) {
		delete(s.byHash, hash)
		return rotation, model.ErrRefreshTokenExpired
	}
	if current.Used {
		delete(s.byHash, hash)
		return rotation, model.ErrRefreshTokenReused
	}

	rotation.RawToken, rotation.Token = s.replaceLocked(current.UserID, ttl)
	return rotation, nil
}

func (s *RefreshTokens) DeleteByPrincipal(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, t := range s.byHash {
		if t.UserID == userID {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}

// Put stores a token as-is, for fixtures such as used or expired rows.
func (s *RefreshTokens) Put(raw string, t model.RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.TokenHash = repository.HashToken(raw)
	s.byHash[t.TokenHash] = t
}

// Live returns the number of live tokens the user holds.
func (s *RefreshTokens) Live(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byHash {
		if t.UserID == userID && t.Live(s.now()) {
			n++
		}
	}
	return n
}

func (s *RefreshTokens) replaceLocked(userID string, ttl time.Duration) (string, model.RefreshToken) {
	for hash, t := range s.byHash {
		if t.UserID == userID {
			delete(s.byHash, hash)
		}
	}
	now := s.now().UTC()
	raw := uuid.NewString()
	t := model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: repository.HashToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.byHash[t.TokenHash] = t
	return raw, t
}

type Audit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (s *Audit) Log(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Audit) Query(_ context.Context, q model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if q.TenantID != "" && e.Actor.TenantID != q.TenantID {
			continue
		}
		if q.Action != "" && !strings.EqualFold(e.Action, q.Action) {
			continue
		}
		out = append(out, e)
	}
	return out, model.Meta{Page: 1, Limit: len(out), Total: len(out), TotalPages: 1}, nil
}

// Entries returns a copy of everything logged so far.
func (s *Audit) Entries() []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}
