package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"agency-platform/internal/domain/tenant"
	apperrors "agency-platform/pkg/errors"
)

const errAgencyQuotaFmt = "client may own at most %d active agencies"

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Client is the owner tier: an account that owns one or more agencies.
type Client struct {
	ID        uuid.UUID
	Email     string
	Status    Status
	Limits    tenant.ResourceLimits
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Client) Active() bool {
	return c != nil && c.Status == StatusActive
}

// ValidateAgencyQuota is called before an agency is created or activated.
// activeCount is the number of active agencies the client already owns.
func (c *Client) ValidateAgencyQuota(activeCount int) error {
	if activeCount >= c.Limits.AgencyCount {
		return apperrors.QuotaExceeded(fmt.Sprintf(errAgencyQuotaFmt, c.Limits.AgencyCount))
	}
	return nil
}
