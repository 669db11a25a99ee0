// Package services – IncidentService
//
// This file implements the incident correlator. Every pass it rebuilds the
// account→monitoring-group mapping, asks the monitoring system which of those
// groups are down, and recomputes the affected-account set from scratch. Flag
// writes happen only on real transitions, and a push notification fires
// exactly once per false→true edge; recovery is silent. A pass over an
// unchanged monitoring snapshot therefore makes zero notification calls.
package services

import (
	"context"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vt54/isp-mobile-backend/internal/domain"
	"github.com/vt54/isp-mobile-backend/internal/repo"
)

// outageMessage is pushed once to every account entering the affected set.
const outageMessage = "We are aware of a service outage in your area and are working on it. Internet access will be restored as soon as possible."

// AccountGroup is one account's monitoring-group assignment, as produced by
// the group directory.
type AccountGroup struct {
	Account domain.AccountRef
	GroupID int
}

// GroupDirectory resolves the known accounts and their monitoring groups.
type GroupDirectory interface {
	AccountGroups(ctx context.Context) ([]AccountGroup, error)
}

// Monitor answers which of the given monitoring groups are currently down.
type Monitor interface {
	DownGroups(ctx context.Context, names []string) (map[string]bool, error)
}

// Notifier delivers best-effort push notifications.
type Notifier interface {
	Push(ctx context.Context, accountID, message string)
}

// IncidentService correlates monitoring state with accounts and maintains the
// per-account incident flags.
type IncidentService struct {
	// DB is the GORM handle for the app store.
	DB *gorm.DB
	// Directory lists accounts with their group assignments.
	Directory GroupDirectory
	// Monitor queries the external monitoring system.
	Monitor Monitor
	// Notify dispatches outage pushes.
	Notify Notifier
	// Log is the service logger.
	Log zerolog.Logger
}

// NewIncidentService constructs an IncidentService.
func NewIncidentService(db *gorm.DB, dir GroupDirectory, mon Monitor, n Notifier, log zerolog.Logger) *IncidentService {
	return &IncidentService{
		DB:        db,
		Directory: dir,
		Monitor:   mon,
		Notify:    n,
		Log:       log.With().Str("component", "incident").Logger(),
	}
}

// Status reports whether the account is currently inside an affected group.
func (s *IncidentService) Status(ctx context.Context, account domain.AccountRef) (bool, error) {
	return repo.GetIncidentFlag(ctx, s.DB, account.ID())
}

// RunCorrelation executes one correlation pass. Monitoring failures degrade
// to "no groups down this pass"; they never abort the run, so flags still
// converge on the best available picture.
func (s *IncidentService) RunCorrelation(ctx context.Context) error {
	assignments, err := s.Directory.AccountGroups(ctx)
	if err != nil {
		return err
	}

	// Group name → member accounts, namespaced per backend. Both backends may
	// reuse raw group identifiers, so the prefix is mandatory.
	members := map[string][]domain.AccountRef{}
	for _, a := range assignments {
		name := a.Account.Backend().GroupPrefix() + strconv.Itoa(a.GroupID)
		members[name] = append(members[name], a.Account)
	}
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	down, err := s.Monitor.DownGroups(ctx, names)
	if err != nil {
		s.Log.Warn().Err(err).Msg("monitoring query failed, treating all groups as up")
		down = map[string]bool{}
	}

	affected := map[string]bool{}
	for name := range down {
		for _, acc := range members[name] {
			affected[acc.ID()] = true
		}
	}

	notified := 0
	for _, a := range assignments {
		id := a.Account.ID()
		changed, err := repo.SetIncidentFlag(ctx, s.DB, id, affected[id])
		if err != nil {
			s.Log.Error().Err(err).Str("account", id).Msg("writing incident flag, continuing pass")
			continue
		}
		// Notifications are one-directional: outage only, never recovery.
		if changed && affected[id] {
			s.Notify.Push(ctx, id, outageMessage)
			notified++
		}
	}

	// Flags can outlive a directory entry (account removed or regrouped);
	// clear any leftover so the affected set matches this pass exactly.
	flagged, err := repo.ListAffectedAccounts(ctx, s.DB)
	if err != nil {
		return err
	}
	known := map[string]bool{}
	for _, a := range assignments {
		known[a.Account.ID()] = true
	}
	for _, id := range flagged {
		if !known[id] && !affected[id] {
			if _, err := repo.SetIncidentFlag(ctx, s.DB, id, false); err != nil {
				s.Log.Error().Err(err).Str("account", id).Msg("clearing stale incident flag")
			}
		}
	}

	s.Log.Info().
		Int("groups", len(names)).
		Int("down", len(down)).
		Int("affected", len(affected)).
		Int("notified", notified).
		Msg("correlation pass finished")
	return nil
}
