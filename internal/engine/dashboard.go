package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/store"
)

const dashboardResource = "dashboard"

// ResourceStats is one dashboard tile.
type ResourceStats struct {
	Resource string           `json:"resource"`
	Label    string           `json:"label"`
	Total    int64            `json:"total"`
	ByState  map[string]int64 `json:"by_state,omitempty"`
}

// Dashboard handles GET /api/dashboard. It counts the rows of every resource
// the caller may read, scoped to the caller's agency where applicable.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	session := GetSession(c)
	if err := h.guard.CheckAccess(c, session, dashboardResource); err != nil {
		return err
	}

	ac := h.guard.Control()
	stats := []ResourceStats{}
	for _, res := range h.registry.All() {
		if !ac.HasPermission(session.Role, res.Name, "read") {
			continue
		}
		s, err := h.resourceStats(c, res, session)
		if err != nil {
			return err
		}
		stats = append(stats, s)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"role":      session.Role.String(),
			"agency_id": session.AgencyID,
			"stats":     stats,
		},
	})
}

func (h *Handler) resourceStats(c *fiber.Ctx, res *metadata.Resource, session *metadata.Session) (ResourceStats, error) {
	stats := ResourceStats{Resource: res.Name, Label: res.Label}
	pb := h.store.Dialect.NewParamBuilder()
	where := buildWhere(ScopeFilters(session, res), pb, h.store.Dialect)
	if where != "" {
		where = " WHERE " + where
	}

	if res.StateMachine == nil {
		row, err := store.QueryRow(c.Context(), h.store.DB, "SELECT COUNT(*) AS count FROM "+res.Table+where, pb.Params()...)
		if err != nil {
			return stats, fmt.Errorf("count %s: %w", res.Name, err)
		}
		stats.Total = toInt64(row["count"])
		return stats, nil
	}

	field := res.StateMachine.Field
	sql := fmt.Sprintf("SELECT %s AS state, COUNT(*) AS count FROM %s%s GROUP BY %s", field, res.Table, where, field)
	rows, err := store.QueryRows(c.Context(), h.store.DB, sql, pb.Params()...)
	if err != nil {
		return stats, fmt.Errorf("count %s by state: %w", res.Name, err)
	}
	stats.ByState = make(map[string]int64, len(rows))
	for _, row := range rows {
		n := toInt64(row["count"])
		stats.ByState[fmt.Sprintf("%v", row["state"])] = n
		stats.Total += n
	}
	return stats, nil
}
