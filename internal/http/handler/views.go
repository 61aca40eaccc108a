package handler

import (
	"time"

	"agency-platform/internal/domain/client"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/domain/user"
	"agency-platform/internal/rbac"
)

type PrincipalView struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	AgencyID    string   `json:"agencyId,omitempty"`
	Permissions []string `json:"permissions"`
}

func newPrincipalView(p *rbac.Principal) PrincipalView {
	v := PrincipalView{
		ID:          p.ID.String(),
		Email:       p.Email,
		Role:        string(p.Role),
		Permissions: p.Permissions.Strings(),
	}
	if p.HasTenant() {
		v.AgencyID = p.TenantID.String()
	}
	return v
}

func newUserView(u *user.User) PrincipalView {
	return newPrincipalView(u.Principal())
}

// PublicAgencyView is what anonymous visitors may see of an agency.
type PublicAgencyView struct {
	Subdomain string `json:"subdomain"`
	Name      string `json:"name"`
}

func newPublicAgencyView(t *tenant.Tenant) PublicAgencyView {
	return PublicAgencyView{Subdomain: t.Subdomain, Name: t.Name}
}

type ClientView struct {
	ID        string                `json:"id"`
	Email     string                `json:"email"`
	Status    string                `json:"status"`
	Limits    tenant.ResourceLimits `json:"limits"`
	CreatedAt time.Time             `json:"createdAt"`
}

func newClientView(c *client.Client) ClientView {
	return ClientView{
		ID:        c.ID.String(),
		Email:     c.Email,
		Status:    string(c.Status),
		Limits:    c.Limits,
		CreatedAt: c.CreatedAt,
	}
}

type QuotaView struct {
	AgencyLimit int  `json:"agencyLimit"`
	ActiveCount int  `json:"activeCount"`
	CanActivate bool `json:"canActivate"`
}
