package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/store"
)

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	guard    *Guard
}

func NewHandler(s *store.Store, reg *metadata.Registry, guard *Guard) *Handler {
	return &Handler{store: s, registry: reg, guard: guard}
}

// List handles GET /api/:resource
func (h *Handler) List(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, res.Name, "read"); err != nil {
		return err
	}

	plan, err := ParseQueryParams(c, res, h.store.Dialect)
	if err != nil {
		return err
	}
	plan.Filters = append(plan.Filters, ScopeFilters(session, res)...)

	rows, err := h.selectRows(c, plan)
	if err != nil {
		return err
	}

	cr := BuildCountSQL(plan, h.store.Dialect)
	countRow, err := store.QueryRow(c.Context(), h.store.DB, cr.SQL, cr.Params...)
	if err != nil {
		return fmt.Errorf("count %s: %w", res.Name, err)
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     plan.Page,
			"per_page": plan.PerPage,
			"total":    countRow["count"],
		},
	})
}

func (h *Handler) selectRows(c *fiber.Ctx, plan *QueryPlan) ([]map[string]any, error) {
	qr := BuildSelectSQL(plan, h.store.Dialect)
	rows, err := store.QueryRows(c.Context(), h.store.DB, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", plan.Resource.Name, err)
	}
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, plan.Resource.BoolColumns())
	}
	// Ensure non-nil slice for JSON
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// GetByID handles GET /api/:resource/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, res.Name, "read"); err != nil {
		return err
	}

	row, err := h.loadScoped(c, res, session)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, res.Name, "create"); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if body == nil {
		body = map[string]any{}
	}

	if res.AgencyScoped && session.AgencyScoped() {
		body[metadata.AgencyField] = session.AgencyID
	}

	plan, validationErrs := PlanWrite(res, body, nil, session)
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}
	if errs := checkResourceWrite(plan, nil); len(errs) > 0 {
		return ValidationError(errs)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, plan)
	if err != nil {
		return handleWriteError(err)
	}

	return c.Status(201).JSON(fiber.Map{"data": record})
}

// Update handles PUT /api/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, res.Name, "update"); err != nil {
		return err
	}

	current, err := h.loadScoped(c, res, session)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	if res.AgencyScoped && session.AgencyScoped() {
		if v, ok := body[metadata.AgencyField]; ok && v != session.AgencyID {
			return ValidationError([]ErrorDetail{{
				Field:   metadata.AgencyField,
				Rule:    "scope",
				Message: "Records cannot be moved to another agency",
			}})
		}
	}

	id := current[res.PrimaryKey.Field]
	plan, validationErrs := PlanWrite(res, body, id, session)
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}
	if errs := checkResourceWrite(plan, current); len(errs) > 0 {
		return ValidationError(errs)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, plan)
	if err != nil {
		return handleWriteError(err)
	}

	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/:resource/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}

	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, res.Name, "delete"); err != nil {
		return err
	}

	current, err := h.loadScoped(c, res, session)
	if err != nil {
		return err
	}

	id := current[res.PrimaryKey.Field]
	sql, params := BuildDeleteSQL(res, id, h.store.Dialect)
	affected, err := store.Exec(c.Context(), h.store.DB, sql, params...)
	if err != nil {
		return fmt.Errorf("delete %s/%v: %w", res.Name, id, err)
	}
	if affected == 0 {
		return NotFoundError(res.Name, c.Params("id"))
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// Transition handles POST /api/:resource/:id/transition with body {"to": "<state>"}.
// The caller needs the transition's own permission on the resource.
func (h *Handler) Transition(c *fiber.Ctx) error {
	res, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	sm := res.StateMachine
	if sm == nil {
		return NewAppError("NO_STATE_MACHINE", 400, fmt.Sprintf("%s has no state machine", res.Name))
	}

	session := GetSession(c)
	if err := h.guard.CheckAccess(c, session, res.Name); err != nil {
		return err
	}

	var body struct {
		To string `json:"to"`
	}
	if err := c.BodyParser(&body); err != nil || body.To == "" {
		return NewAppError("INVALID_PAYLOAD", 400, `Body must be {"to": "<state>"}`)
	}
	if err := h.checkTransitionTarget(c, session, res, body.To); err != nil {
		return err
	}

	current, err := h.loadScoped(c, res, session)
	if err != nil {
		return err
	}

	from := fmt.Sprintf("%v", current[sm.Field])
	transition := FindTransition(sm, from, body.To)
	if transition == nil {
		return InvalidTransitionError(from, body.To)
	}
	if err := h.guard.CheckPermission(c, session, res.Name, transition.Permission); err != nil {
		return err
	}

	blocked, err := EvaluateGuard(transition, ExpressionEnv(nil, current, "transition"))
	if err != nil {
		return ValidationError([]ErrorDetail{{Field: sm.Field, Rule: "state_machine", Message: fmt.Sprintf("Guard evaluation error: %v", err)}})
	}
	if blocked {
		return ValidationError([]ErrorDetail{{
			Field:   sm.Field,
			Rule:    "state_machine",
			Message: fmt.Sprintf("Transition from '%s' to '%s' blocked by guard", from, body.To),
		}})
	}

	now := time.Now().UTC().Truncate(time.Second)
	changes := map[string]any{sm.Field: body.To}
	ExecuteActions(transition, changes, session.UserID, now)

	columns := make(map[string]any, len(changes)+1)
	for name, v := range changes {
		f := res.GetField(name)
		if f == nil {
			return fmt.Errorf("transition action sets unknown field %s.%s", res.Name, name)
		}
		columns[f.ColumnName()] = v
	}
	for _, f := range res.Fields {
		if f.Auto == "update" {
			columns[f.ColumnName()] = now
		}
	}

	id := current[res.PrimaryKey.Field]
	sql, params := BuildUpdateSQL(res, id, columns, h.store)
	if _, err := store.Exec(c.Context(), h.store.DB, sql, params...); err != nil {
		return fmt.Errorf("transition %s/%v: %w", res.Name, id, err)
	}

	record, err := fetchRecord(c.Context(), h.store.DB, res, id, h.store.Dialect)
	if err != nil {
		return fmt.Errorf("reload %s/%v: %w", res.Name, id, err)
	}
	return c.JSON(fiber.Map{"data": record})
}

// checkTransitionTarget runs before the record is loaded so callers without
// any permission leading to target learn nothing about the current state.
func (h *Handler) checkTransitionTarget(c *fiber.Ctx, session *metadata.Session, res *metadata.Resource, target string) error {
	var permission string
	for _, t := range res.StateMachine.Transitions {
		if t.To != target {
			continue
		}
		if h.guard.Control().HasPermission(session.Role, res.Name, t.Permission) {
			return nil
		}
		permission = t.Permission
	}
	if permission == "" {
		return NewAppError("INVALID_TRANSITION", 422, fmt.Sprintf("%s has no transition to '%s'", res.Name, target))
	}
	return h.guard.CheckPermission(c, session, res.Name, permission)
}

// loadScoped fetches the :id record, hiding rows outside the caller's agency.
func (h *Handler) loadScoped(c *fiber.Ctx, res *metadata.Resource, session *metadata.Session) (map[string]any, error) {
	id := c.Params("id")
	row, err := fetchRecord(c.Context(), h.store.DB, res, id, h.store.Dialect)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(res.Name, id)
		}
		return nil, fmt.Errorf("get %s/%s: %w", res.Name, id, err)
	}
	if !InScope(session, res, row) {
		return nil, NotFoundError(res.Name, id)
	}
	return row, nil
}

func (h *Handler) resolveResource(c *fiber.Ctx) (*metadata.Resource, error) {
	name := c.Params("resource")
	res := h.registry.Get(name)
	if res == nil {
		return nil, UnknownResourceError(name)
	}
	return res, nil
}

func handleWriteError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, store.ErrNotFound) {
		return NewAppError("NOT_FOUND", 404, "Record not found")
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	return err
}
