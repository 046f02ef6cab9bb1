// Package partition describes the independent authentication realms.
// Every realm runs the same session pipeline; only the values here differ.
package partition

import (
	"fmt"
	"slices"
	"time"

	"github.com/govlink/govlink/internal/models"
)

const (
	User       = "user"
	Agent      = "agent"
	Admin      = "admin"
	Department = "department"
)

const defaultRefreshTTL = 7 * 24 * time.Hour

type Config struct {
	Name       string
	Collection string

	AccessCookie  string
	RefreshCookie string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// AllowedStatuses may authenticate; Statuses is every status the
	// partition knows about.
	AllowedStatuses []models.Status
	Statuses        []models.Status

	DefaultRole string
	Roles       []string

	SelfRegistration bool
}

func (c Config) Allows(s models.Status) bool {
	return slices.Contains(c.AllowedStatuses, s)
}

func (c Config) Knows(s models.Status) bool {
	return slices.Contains(c.Statuses, s)
}

func (c Config) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

type Registry struct {
	byName map[string]Config
	order  []string
}

func NewRegistry(cfgs ...Config) (*Registry, error) {
	r := &Registry{byName: make(map[string]Config, len(cfgs))}
	for _, c := range cfgs {
		if c.Name == "" || c.Collection == "" {
			return nil, fmt.Errorf("partition: name and collection are required")
		}
		if c.AccessCookie == "" || c.RefreshCookie == "" {
			return nil, fmt.Errorf("partition %s: cookie names are required", c.Name)
		}
		if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
			return nil, fmt.Errorf("partition %s: token lifetimes must be positive", c.Name)
		}
		if len(c.AllowedStatuses) == 0 {
			return nil, fmt.Errorf("partition %s: at least one allowed status is required", c.Name)
		}
		if !c.HasRole(c.DefaultRole) {
			return nil, fmt.Errorf("partition %s: default role %q is not in roles", c.Name, c.DefaultRole)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("partition %s: defined twice", c.Name)
		}
		r.byName[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r, nil
}

func (r *Registry) Get(name string) (Config, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

func Defaults() []Config {
	base := []models.Status{models.StatusActive, models.StatusSuspended, models.StatusDeactivated}
	withReview := append(slices.Clone(base), models.StatusUnderReview)

	return []Config{
		{
			Name:             User,
			Collection:       "users",
			AccessCookie:     "access_token",
			RefreshCookie:    "refresh_token",
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       defaultRefreshTTL,
			AllowedStatuses:  []models.Status{models.StatusActive, models.StatusPendingVerification},
			Statuses:         append(slices.Clone(base), models.StatusPendingVerification),
			DefaultRole:      models.RoleUser,
			Roles:            []string{models.RoleUser},
			SelfRegistration: true,
		},
		{
			Name:            Agent,
			Collection:      "agents",
			AccessCookie:    "agent_access_token",
			RefreshCookie:   "agent_refresh_token",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      defaultRefreshTTL,
			AllowedStatuses: []models.Status{models.StatusActive},
			Statuses:        withReview,
			DefaultRole:     models.RoleAgent,
			Roles:           []string{models.RoleAgent},
		},
		{
			Name:            Admin,
			Collection:      "admins",
			AccessCookie:    "admin_access_token",
			RefreshCookie:   "admin_refresh_token",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      defaultRefreshTTL,
			AllowedStatuses: []models.Status{models.StatusActive},
			Statuses:        slices.Clone(base),
			DefaultRole:     models.RoleAdmin,
			Roles:           []string{models.RoleAdmin, models.RoleSuperadmin},
		},
		{
			Name:            Department,
			Collection:      "departments",
			AccessCookie:    "department_access_token",
			RefreshCookie:   "department_refresh_token",
			AccessTTL:       24 * time.Hour,
			RefreshTTL:      defaultRefreshTTL,
			AllowedStatuses: []models.Status{models.StatusActive},
			Statuses:        slices.Clone(withReview),
			DefaultRole:     models.RoleDepartment,
			Roles:           []string{models.RoleDepartment},
		},
	}
}

func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}
