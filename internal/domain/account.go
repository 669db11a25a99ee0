// Package domain defines the core types of the settlement and incident
// engine: typed account references, payment orders, settlement outcomes, and
// the persistence models mapped with GORM.
package domain

import (
	"errors"
	"fmt"
)

// Backend identifies which of the two account-ledger systems owns an account.
type Backend int

const (
	// BackendLegacy is the old billing system; its ledger lives in the local
	// MySQL database and is credited transactionally.
	BackendLegacy Backend = iota + 1
	// BackendCurrent is the current billing system; its ledger is
	// authoritative downstream and credits are delivered as notifications.
	BackendCurrent
)

// String returns a stable name for logs and group prefixes.
func (b Backend) String() string {
	switch b {
	case BackendLegacy:
		return "legacy"
	case BackendCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// GroupPrefix returns the monitoring-group namespace for the backend. Both
// backends may reuse raw group identifiers, so the prefix is mandatory when
// merging group memberships.
func (b Backend) GroupPrefix() string {
	return b.String() + "-group-"
}

// ErrInvalidAccount is returned when an account identifier does not match
// either backend's shape.
var ErrInvalidAccount = errors.New("invalid account identifier")

// AccountRef is a validated account reference. The owning backend is resolved
// exactly once, at construction, from the identifier's shape: four digits for
// the legacy system, five for the current one. Business logic switches on
// Backend and never re-inspects the identifier.
type AccountRef struct {
	id      string
	backend Backend
}

// ParseAccount validates id and resolves its backend.
func ParseAccount(id string) (AccountRef, error) {
	for _, r := range id {
		if r < '0' || r > '9' {
			return AccountRef{}, fmt.Errorf("%w: %q", ErrInvalidAccount, id)
		}
	}
	switch len(id) {
	case 4:
		return AccountRef{id: id, backend: BackendLegacy}, nil
	case 5:
		return AccountRef{id: id, backend: BackendCurrent}, nil
	default:
		return AccountRef{}, fmt.Errorf("%w: %q", ErrInvalidAccount, id)
	}
}

// LegacyAccount constructs a reference to a legacy-backend account.
// It fails unless id has the four-digit legacy shape.
func LegacyAccount(id string) (AccountRef, error) {
	ref, err := ParseAccount(id)
	if err != nil {
		return AccountRef{}, err
	}
	if ref.backend != BackendLegacy {
		return AccountRef{}, fmt.Errorf("%w: %q is not a legacy account", ErrInvalidAccount, id)
	}
	return ref, nil
}

// CurrentAccount constructs a reference to a current-backend account.
// It fails unless id has the five-digit current shape.
func CurrentAccount(id string) (AccountRef, error) {
	ref, err := ParseAccount(id)
	if err != nil {
		return AccountRef{}, err
	}
	if ref.backend != BackendCurrent {
		return AccountRef{}, fmt.Errorf("%w: %q is not a current account", ErrInvalidAccount, id)
	}
	return ref, nil
}

// ID returns the raw account identifier.
func (a AccountRef) ID() string { return a.id }

// Backend returns the ledger backend owning the account.
func (a AccountRef) Backend() Backend { return a.backend }

// IsZero reports whether the reference was never constructed via a validator.
func (a AccountRef) IsZero() bool { return a.backend == 0 }

// String implements fmt.Stringer for logging.
func (a AccountRef) String() string { return a.id }
