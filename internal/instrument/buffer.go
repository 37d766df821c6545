package instrument

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketing-backend/internal/store"
)

// EventBuffer collects denials in memory and periodically flushes them
// to the _access_events table in a batch insert.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Denial
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(s *store.Store, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize < 1 {
		maxSize = 1
	}
	if flushIntervalMs < 1 {
		flushIntervalMs = 1
	}
	eb := &EventBuffer{
		store:   s,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// RecordDenial adds a denial to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (eb *EventBuffer) RecordDenial(d Denial) {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	eb.mu.Lock()
	eb.events = append(eb.events, d)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Pending returns the number of buffered, unflushed denials.
func (eb *EventBuffer) Pending() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes all buffered denials to the database in a single batch insert.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	if err := eb.insert(context.Background(), batch); err != nil {
		log.Printf("ERROR: access event buffer flush (%d events dropped): %v", len(batch), err)
	}
}

func (eb *EventBuffer) insert(ctx context.Context, batch []Denial) error {
	cols := []string{"id", "user_id", "role", "resource", "action", "method", "path", "created_at"}
	pb := eb.store.Dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, d := range batch {
		var userID any
		if d.UserID != "" {
			userID = d.UserID
		}
		ph := []string{
			pb.Add(uuid.NewString()),
			pb.Add(userID),
			pb.Add(int(d.Role)),
			pb.Add(d.Resource),
			pb.Add(d.Action),
			pb.Add(d.Method),
			pb.Add(d.Path),
			pb.Add(eb.store.Param(d.At)),
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := fmt.Sprintf("INSERT INTO _access_events (%s) VALUES %s", strings.Join(cols, ","), strings.Join(placeholders, ","))
	_, err := eb.store.DB.ExecContext(ctx, sql, pb.Params()...)
	return err
}

// Stop halts the background ticker and flushes remaining denials.
func (eb *EventBuffer) Stop() {
	eb.stop.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		eb.Flush()
	})
}
