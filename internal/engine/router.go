package engine

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// RegisterDynamicRoutes mounts the dashboard, agency profile, and the generic
// resource routes. Fixed paths go first so they win over /:resource.
func RegisterDynamicRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api")

	api.Get("/dashboard", h.Dashboard)
	api.Get("/agencyProfile", h.GetAgencyProfile)
	api.Put("/agencyProfile", h.UpdateAgencyProfile)

	api.Get("/:resource", h.List)
	api.Get("/:resource/export", h.Export)
	api.Get("/:resource/:id", h.GetByID)
	api.Post("/:resource", h.Create)
	api.Put("/:resource/:id", h.Update)
	api.Delete("/:resource/:id", h.Delete)
	api.Post("/:resource/:id/transition", h.Transition)
}

// ErrorHandler renders AppErrors and fiber errors as the JSON error envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}
	log.Printf("ERROR: %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(500).JSON(ErrorResponse{
		Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
	})
}
