package engine

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Export handles GET /api/:resource/export. Same filters and sort as List,
// without pagination, rendered as CSV.
func (h *Handler) Export(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, res.Name, "export"); err != nil {
		return err
	}

	plan, err := ParseQueryParams(c, res, h.store.Dialect)
	if err != nil {
		return err
	}
	plan.Unpaged = true
	plan.Filters = append(plan.Filters, ScopeFilters(session, res)...)

	rows, err := h.selectRows(c, plan)
	if err != nil {
		return err
	}

	columns := res.ReadableColumns()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = csvValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s-%s.csv"`, res.Name, time.Now().UTC().Format("20060102")))
	return c.Send(buf.Bytes())
}

func csvValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
