package tenant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agency-platform/pkg/validator"
)

// Status is the lifecycle state of an agency.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"

	errInvalidStatusFmt = "invalid tenant status: %s"
)

func (s Status) Validate() error {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return nil
	default:
		return fmt.Errorf(errInvalidStatusFmt, s)
	}
}

// ResourceLimits caps what an agency or its owner may consume.
type ResourceLimits struct {
	StorageMB   int64 `json:"storageMb"`
	BandwidthMB int64 `json:"bandwidthMb"`
	AgencyCount int   `json:"agencyCount"`
}

// Tenant is an isolated agency workspace addressed by subdomain.
type Tenant struct {
	ID            uuid.UUID      `json:"id"`
	OwnerClientID uuid.UUID      `json:"ownerClientId"`
	Subdomain     string         `json:"subdomain"`
	Name          string         `json:"name"`
	Status        Status         `json:"status"`
	Limits        ResourceLimits `json:"limits"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (t *Tenant) Active() bool {
	return t != nil && t.Status == StatusActive
}

type CreateTenantInput struct {
	OwnerClientID uuid.UUID
	Subdomain     string
	Name          string
}

// NormalizeSubdomain lowercases and trims a subdomain taken from a request.
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateSubdomain reports whether s is an acceptable agency subdomain
// after normalization.
func ValidateSubdomain(s string) error {
	return validator.Subdomain(NormalizeSubdomain(s))
}

// Validate runs the write-time checks for a new agency.
func (in CreateTenantInput) Validate() error {
	if in.OwnerClientID == uuid.Nil {
		return errors.New("owner client id is required")
	}
	if err := validator.Subdomain(in.Subdomain); err != nil {
		return err
	}
	return validator.DisplayName(in.Name)
}
