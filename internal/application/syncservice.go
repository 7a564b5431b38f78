// Package application contains use-case orchestration services.
package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// refreshRequest represents a manual sites refresh trigger.
type refreshRequest struct {
	done chan error
}

// SyncStatus reports the health of the background sync loop.
type SyncStatus struct {
	LastSitesSync   time.Time
	LastClientsSync time.Time
	SiteCount       int
	ClientCount     int
	LastError       string
}

// SyncService keeps the local SQLite mirror fresh. Sites and clients are
// re-fetched from the backend on independent intervals (sites change more
// often than the client list), and writes trigger an immediate sites refresh
// through RefreshSites. On backend failure the mirror keeps serving the last
// good snapshot and the error is recorded in the status.
type SyncService struct {
	backend         driven.Backend
	siteStore       driven.SiteStore
	clientStore     driven.ClientStore
	sitesInterval   time.Duration
	clientsInterval time.Duration
	refreshCh       chan refreshRequest

	mu     sync.Mutex
	status SyncStatus
}

// NewSyncService creates a new SyncService with all required dependencies.
func NewSyncService(
	backend driven.Backend,
	siteStore driven.SiteStore,
	clientStore driven.ClientStore,
	sitesInterval time.Duration,
	clientsInterval time.Duration,
) *SyncService {
	return &SyncService{
		backend:         backend,
		siteStore:       siteStore,
		clientStore:     clientStore,
		sitesInterval:   sitesInterval,
		clientsInterval: clientsInterval,
		refreshCh:       make(chan refreshRequest),
	}
}

// Start begins the sync loop. It runs an immediate full sync, then refreshes
// sites and clients on their configured intervals, and serves manual refresh
// requests. Start blocks until the context is canceled.
func (s *SyncService) Start(ctx context.Context) {
	if err := s.syncSites(ctx); err != nil {
		slog.Error("initial sites sync failed", "error", err)
	}
	if err := s.syncClients(ctx); err != nil {
		slog.Error("initial clients sync failed", "error", err)
	}

	sitesTicker := time.NewTicker(s.sitesInterval)
	defer sitesTicker.Stop()
	clientsTicker := time.NewTicker(s.clientsInterval)
	defer clientsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-sitesTicker.C:
			if err := s.syncSites(ctx); err != nil {
				slog.Error("sites sync failed", "error", err)
			}
		case <-clientsTicker.C:
			if err := s.syncClients(ctx); err != nil {
				slog.Error("clients sync failed", "error", err)
			}
		case req := <-s.refreshCh:
			req.done <- s.syncSites(ctx)
		}
	}
}

// RefreshSites triggers an immediate sites refresh, bypassing the interval.
// It blocks until the refresh completes or the context is canceled. Writes
// call this so the mirror reflects the change before the caller re-reads.
func (s *SyncService) RefreshSites(ctx context.Context) error {
	done := make(chan error, 1)

	select {
	case s.refreshCh <- refreshRequest{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the sync loop's health.
func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// syncSites fetches the site list from the backend and swaps the mirror.
func (s *SyncService) syncSites(ctx context.Context) error {
	start := time.Now()

	sites, err := s.backend.FetchSites(ctx)
	if err != nil {
		s.recordError(err)
		return err
	}

	if err := s.siteStore.ReplaceAll(ctx, sites); err != nil {
		s.recordError(err)
		return err
	}

	s.mu.Lock()
	s.status.LastSitesSync = time.Now().UTC()
	s.status.SiteCount = len(sites)
	s.status.LastError = ""
	s.mu.Unlock()

	slog.Info("sites synced",
		"count", len(sites),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// syncClients fetches the client list from the backend and swaps the mirror.
func (s *SyncService) syncClients(ctx context.Context) error {
	start := time.Now()

	clients, err := s.backend.FetchClients(ctx)
	if err != nil {
		s.recordError(err)
		return err
	}

	if err := s.clientStore.ReplaceAll(ctx, clients); err != nil {
		s.recordError(err)
		return err
	}

	s.mu.Lock()
	s.status.LastClientsSync = time.Now().UTC()
	s.status.ClientCount = len(clients)
	s.status.LastError = ""
	s.mu.Unlock()

	slog.Info("clients synced",
		"count", len(clients),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

func (s *SyncService) recordError(err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
}
