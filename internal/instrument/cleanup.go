package instrument

import (
	"context"
	"fmt"
	"log"
	"time"

	"ticketing-backend/internal/store"
)

// CleanupOldEvents deletes access events older than retentionDays.
func CleanupOldEvents(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	whereExpr := s.Dialect.IntervalDeleteExpr("created_at", pb, retentionDays)
	sqlStr := fmt.Sprintf("DELETE FROM _access_events WHERE %s", whereExpr)
	n, err := store.Exec(ctx, s.DB, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("access event cleanup: %w", err)
	}
	if n > 0 {
		log.Printf("Access event cleanup: deleted %d old events", n)
	}
	return n, nil
}

// CleanupScheduler runs CleanupOldEvents on a fixed interval.
type CleanupScheduler struct {
	store         *store.Store
	retentionDays int
	interval      time.Duration
	ticker        *time.Ticker
	done          chan struct{}
}

func NewCleanupScheduler(s *store.Store, retentionDays int, interval time.Duration) *CleanupScheduler {
	return &CleanupScheduler{store: s, retentionDays: retentionDays, interval: interval}
}

// Start runs one cleanup immediately, then on every tick.
func (cs *CleanupScheduler) Start() {
	cs.done = make(chan struct{})
	cs.ticker = time.NewTicker(cs.interval)
	go cs.run()
	log.Printf("Access event cleanup scheduler started (retention: %d days, every %s)", cs.retentionDays, cs.interval)
}

// Stop halts the background ticker.
func (cs *CleanupScheduler) Stop() {
	if cs.ticker != nil {
		cs.ticker.Stop()
	}
	if cs.done != nil {
		close(cs.done)
	}
}

func (cs *CleanupScheduler) run() {
	cs.cleanup()
	for {
		select {
		case <-cs.done:
			return
		case <-cs.ticker.C:
			cs.cleanup()
		}
	}
}

func (cs *CleanupScheduler) cleanup() {
	if _, err := CleanupOldEvents(context.Background(), cs.store, cs.retentionDays); err != nil {
		log.Printf("ERROR: %v", err)
	}
}
