package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/store"
)

const agencyProfileResource = "agencyProfile"

// profileFields are the agency columns an agency may edit about itself.
var profileFields = map[string]bool{"name": true, "city": true, "phone": true, "email": true}

// GetAgencyProfile handles GET /api/agencyProfile: the caller's own agency.
func (h *Handler) GetAgencyProfile(c *fiber.Ctx) error {
	session := GetSession(c)
	if err := h.guard.CheckAccess(c, session, agencyProfileResource); err != nil {
		return err
	}

	_, row, err := h.ownAgency(c, session)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": row,
		"meta": fiber.Map{"actions": h.guard.Control().Actions(session.Role, agencyProfileResource)},
	})
}

// UpdateAgencyProfile handles PUT /api/agencyProfile.
func (h *Handler) UpdateAgencyProfile(c *fiber.Ctx) error {
	session := GetSession(c)
	if err := h.guard.CheckPermission(c, session, agencyProfileResource, "update"); err != nil {
		return err
	}

	res, current, err := h.ownAgency(c, session)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	var errs []ErrorDetail
	for key := range body {
		if !profileFields[key] {
			errs = append(errs, ErrorDetail{
				Field:   key,
				Rule:    "read_only",
				Message: fmt.Sprintf("%s cannot be changed from the agency profile", key),
			})
		}
	}
	if len(errs) > 0 {
		return ValidationError(errs)
	}

	plan, validationErrs := PlanWrite(res, body, current[res.PrimaryKey.Field], session)
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, plan)
	if err != nil {
		return handleWriteError(err)
	}
	return c.JSON(fiber.Map{"data": record})
}

func (h *Handler) ownAgency(c *fiber.Ctx, session *metadata.Session) (*metadata.Resource, map[string]any, error) {
	res := h.registry.Get("agencies")
	if res == nil {
		return nil, nil, UnknownResourceError("agencies")
	}
	if session.AgencyID == "" {
		return nil, nil, NewAppError("NOT_FOUND", 404, "No agency is attached to this account")
	}
	row, err := fetchRecord(c.Context(), h.store.DB, res, session.AgencyID, h.store.Dialect)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, NotFoundError("agencies", session.AgencyID)
		}
		return nil, nil, fmt.Errorf("get agency %s: %w", session.AgencyID, err)
	}
	return res, row, nil
}
