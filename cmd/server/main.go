package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/admin"
	"ticketing-backend/internal/auth"
	"ticketing-backend/internal/config"
	"ticketing-backend/internal/engine"
	"ticketing-backend/internal/instrument"
	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/navigation"
	"ticketing-backend/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s, db: %s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 2. Permission table
	table := access.DefaultTable()
	if path := cfg.Access.PermissionsFile; path != "" {
		table, err = access.LoadFile(path)
		if err != nil {
			log.Fatalf("Failed to load permissions: %v", err)
		}
		log.Printf("Permissions loaded from %s", path)
	}
	ac := access.New(table)

	// 3. Resource catalog
	reg := metadata.NewRegistry()
	reg.Load(metadata.Catalog())
	if err := engine.CompileRegistry(reg); err != nil {
		log.Fatalf("Failed to compile resource rules: %v", err)
	}

	// 4. Connect to database and create tables
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := db.Bootstrap(ctx, reg.All()); err != nil {
		log.Fatalf("Failed to bootstrap tables: %v", err)
	}
	log.Println("Tables ready")

	if cfg.Demo.Seed {
		seed, err := db.SeedDemo(ctx, cfg.Demo.Password)
		if err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		if seed != nil {
			log.Printf("Demo data seeded: %d agencies, %d users (login <role>@demo.local)", len(seed.Agencies), len(seed.Users))
		}
	}

	// 5. Access denial auditing
	var recorder instrument.Recorder = instrument.NoopRecorder{}
	if cfg.Audit.Enabled {
		buffer := instrument.NewEventBuffer(db, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
		defer buffer.Stop()
		recorder = buffer

		cleanup := instrument.NewCleanupScheduler(db, cfg.Audit.RetentionDays, time.Hour)
		cleanup.Start()
		defer cleanup.Stop()
	}
	guard := engine.NewGuard(ac, recorder)

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Auth routes (before middleware, no session required)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(db, cfg.JWTSecret))

	// 8. Everything else under /api needs a session. Fixed paths are
	// registered before the generic /:resource routes.
	api := app.Group("/api", auth.AuthMiddleware(cfg.JWTSecret))
	navigation.RegisterRoutes(api, navigation.NewHandler(ac))
	admin.RegisterAdminRoutes(api, admin.NewHandler(ac, reg, instrument.NewEventHandler(db)), guard)
	engine.RegisterDynamicRoutes(app, engine.NewHandler(db, reg, guard))

	// 9. Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}
