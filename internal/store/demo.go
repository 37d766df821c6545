package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ticketing-backend/internal/access"
)

// DemoSeed reports the identifiers of the rows SeedDemo inserted.
type DemoSeed struct {
	// Agencies in insertion order; the first one hosts the agency-tier users.
	Agencies []string
	Users    map[access.Role]string
	Voyages  []string
}

// DemoEmail returns the login of the demo user holding role.
func DemoEmail(role access.Role) string {
	return strings.ToLower(role.String()) + "@demo.local"
}

// SeedDemo fills an empty database with a small data set covering every
// resource and one user per role. It returns nil, nil when users already exist.
func (s *Store) SeedDemo(ctx context.Context, password string) (*DemoSeed, error) {
	n, err := s.Count(ctx, "users")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	hash := string(hashBytes)

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin demo seed: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Truncate(time.Second)
	seed := &DemoSeed{Users: make(map[access.Role]string)}

	insert := func(table string, row map[string]any) (string, error) {
		id, ok := row["id"].(string)
		if !ok {
			id = uuid.NewString()
			row["id"] = id
		}
		row["created_at"] = now
		row["updated_at"] = now
		if err := s.InsertRow(ctx, tx, table, row); err != nil {
			return "", fmt.Errorf("seed %s: %w", table, err)
		}
		return id, nil
	}

	agencies := []map[string]any{
		{"name": "Dakar Express", "code": "DKR001", "city": "Dakar", "phone": "+221 33 800 0001", "status": "active", "validated_at": now},
		{"name": "Thies Transit", "code": "THS002", "city": "Thies", "phone": "+221 33 800 0002", "status": "active", "validated_at": now},
		{"name": "Saint-Louis Lines", "code": "STL003", "city": "Saint-Louis", "status": "pending"},
	}
	for _, a := range agencies {
		id, err := insert("agencies", a)
		if err != nil {
			return nil, err
		}
		seed.Agencies = append(seed.Agencies, id)
	}
	home := seed.Agencies[0]

	for _, role := range access.AllRoles() {
		row := map[string]any{
			"email":         DemoEmail(role),
			"password_hash": hash,
			"full_name":     "Demo " + strings.ReplaceAll(strings.ToLower(role.String()), "_", " "),
			"role":          int(role),
			"active":        true,
		}
		if role.IsAgencyUser() {
			row["agency_id"] = home
		}
		id, err := insert("users", row)
		if err != nil {
			return nil, err
		}
		seed.Users[role] = id
	}

	routes := []struct {
		agency       string
		origin, dest string
		hours        int
		price        float64
	}{
		{seed.Agencies[0], "Dakar", "Thies", 2, 3500},
		{seed.Agencies[0], "Dakar", "Saint-Louis", 5, 7000},
		{seed.Agencies[1], "Thies", "Kaolack", 3, 4500},
	}
	for i, r := range routes {
		departure := now.Add(time.Duration(24*(i+1)) * time.Hour)
		id, err := insert("voyages", map[string]any{
			"agency_id":    r.agency,
			"origin":       r.origin,
			"destination":  r.dest,
			"departure_at": departure,
			"arrival_at":   departure.Add(time.Duration(r.hours) * time.Hour),
			"price":        r.price,
			"seats":        50,
			"status":       "scheduled",
		})
		if err != nil {
			return nil, err
		}
		seed.Voyages = append(seed.Voyages, id)
	}

	for i, voyageID := range seed.Voyages {
		agency := routes[i].agency
		resID, err := insert("reservations", map[string]any{
			"agency_id":       agency,
			"voyage_id":       voyageID,
			"passenger_name":  fmt.Sprintf("Passenger %d", i+1),
			"passenger_phone": fmt.Sprintf("+221 77 000 00%02d", i+1),
			"seats":           1,
			"amount":          routes[i].price,
			"status":          "confirmed",
		})
		if err != nil {
			return nil, err
		}
		if _, err := insert("transactions", map[string]any{
			"agency_id":      agency,
			"reservation_id": resID,
			"amount":         routes[i].price,
			"method":         "mobile_money",
			"reference":      fmt.Sprintf("TX-%04d", i+1),
			"status":         "pending",
		}); err != nil {
			return nil, err
		}
		if i == 0 {
			if _, err := insert("complaints", map[string]any{
				"agency_id":      agency,
				"reservation_id": resID,
				"subject":        "Late departure",
				"message":        "The bus left forty minutes after the scheduled time.",
				"status":         "open",
			}); err != nil {
				return nil, err
			}
		}
	}

	settings := []map[string]any{
		{"name": "currency", "value": "XOF", "description": "Currency used for prices and payments"},
		{"name": "booking.max_seats", "value": "10", "description": "Maximum seats per reservation"},
	}
	for _, st := range settings {
		st["created_at"] = now
		st["updated_at"] = now
		if err := s.InsertRow(ctx, tx, "settings", st); err != nil {
			return nil, fmt.Errorf("seed settings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit demo seed: %w", err)
	}

	log.Printf("WARN: Demo data seeded (%d agencies, %d users). Demo users share the configured demo password.", len(seed.Agencies), len(seed.Users))
	return seed, nil
}
