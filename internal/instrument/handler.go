package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/store"
)

// EventHandler exposes the recorded access denials.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates an EventHandler backed by the given store.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

// List handles GET /api/auditLogs and GET /api/_admin/access-events.
// Filters: role (name or number), resource, action, user_id.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()

	var conditions []string
	if v := c.Query("role"); v != "" {
		role, ok := access.ParseRole(v)
		if !ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Unknown role: " + v}})
			}
			role = access.Role(n)
		}
		conditions = append(conditions, "role = "+pb.Add(int(role)))
	}
	for _, col := range []string{"resource", "action", "user_id"} {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, col+" = "+pb.Add(v))
		}
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.store.DB, "SELECT COUNT(*) AS count FROM _access_events"+whereClause, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count access events: %w", err)
	}

	dataSQL := fmt.Sprintf(
		"SELECT id, user_id, role, resource, action, method, path, created_at FROM _access_events%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		whereClause, pb.Add(perPage), pb.Add((page-1)*perPage),
	)
	rows, err := store.QueryRows(ctx, h.store.DB, dataSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list access events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	for _, row := range rows {
		row["role_name"] = access.Role(toInt(row["role"])).String()
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    toInt(countRow["count"]),
		},
	})
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
