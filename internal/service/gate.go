package service

import (
	"time"

	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
)

// Gate decides whether an already identified principal may hold a session.
// A lock wins over status; a disallowed status is named in the error.
func Gate(p partition.Config, pr *models.Principal, now time.Time) error {
	if pr.LockedAt(now) {
		return apperr.AccountLocked()
	}
	if !p.Allows(pr.Status) {
		return apperr.AccountNotActive(pr.Status)
	}
	return nil
}
