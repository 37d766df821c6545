package instrument

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/config"
	"ticketing-backend/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: "events", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx, nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func countEvents(t *testing.T, s *store.Store) int64 {
	t.Helper()
	n, err := s.Count(context.Background(), "_access_events")
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestEventBufferFlushesOnStop(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s, 100, 60_000)

	eb.RecordDenial(Denial{UserID: "u1", Role: access.RoleAgentAgence, Resource: "transactions", Action: "read", Method: "GET", Path: "/api/transactions"})
	eb.RecordDenial(Denial{Role: access.Role(999), Resource: "dashboard", Action: "read"})
	if eb.Pending() != 2 {
		t.Fatalf("expected 2 pending events, got %d", eb.Pending())
	}

	eb.Stop()
	eb.Stop() // second stop is a no-op

	if eb.Pending() != 0 {
		t.Errorf("expected buffer to be drained, got %d", eb.Pending())
	}
	if n := countEvents(t, s); n != 2 {
		t.Errorf("expected 2 stored events, got %d", n)
	}
}

func TestEventBufferFlushWhenFull(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s, 2, 60_000)
	defer eb.Stop()

	eb.RecordDenial(Denial{Role: access.RoleAdminAgence, Resource: "settings", Action: "read"})
	eb.RecordDenial(Denial{Role: access.RoleAdminAgence, Resource: "settings", Action: "update"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if countEvents(t, s) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected a full buffer to flush on its own")
}

func TestEventBufferClampsInterval(t *testing.T) {
	s := testStore(t)
	for _, ms := range []int{0, -5} {
		eb := NewEventBuffer(s, 0, ms)
		eb.RecordDenial(Denial{Role: access.RoleAgentAgence, Resource: "users", Action: "read"})
		eb.Stop()
	}
	if n := countEvents(t, s); n != 2 {
		t.Errorf("expected 2 stored events, got %d", n)
	}
}

func TestCleanupOldEvents(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s, 100, 60_000)
	eb.RecordDenial(Denial{Role: access.RoleAgentAgence, Resource: "users", Action: "read", At: time.Now().Add(-60 * 24 * time.Hour)})
	eb.RecordDenial(Denial{Role: access.RoleAgentAgence, Resource: "users", Action: "read"})
	eb.Stop()

	n, err := CleanupOldEvents(context.Background(), s, 30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted event, got %d", n)
	}
	if remaining := countEvents(t, s); remaining != 1 {
		t.Errorf("expected 1 remaining event, got %d", remaining)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.RecordDenial(Denial{Role: access.RoleSuperAdmin})
}

func TestListHandler(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s, 100, 60_000)
	eb.RecordDenial(Denial{UserID: "u1", Role: access.RoleAgentAgence, Resource: "transactions", Action: "read"})
	eb.RecordDenial(Denial{UserID: "u2", Role: access.RoleSousAdminSupport, Resource: "voyages", Action: "read"})
	eb.Stop()

	app := fiber.New()
	app.Get("/events", NewEventHandler(s).List)

	req, _ := http.NewRequest("GET", "/events?role=AGENT_AGENCE", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Meta.Total != 1 || len(out.Data) != 1 {
		t.Fatalf("expected one AGENT_AGENCE event, got %s", body)
	}
	if out.Data[0]["role_name"] != "AGENT_AGENCE" || out.Data[0]["resource"] != "transactions" {
		t.Errorf("unexpected event: %v", out.Data[0])
	}

	req, _ = http.NewRequest("GET", "/events?role=NOPE", nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for unknown role name, got %d", resp.StatusCode)
	}
}
