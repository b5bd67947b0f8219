package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/FormFox/app/controllers"
	"github.com/ManuelReschke/FormFox/app/repository"
	"github.com/ManuelReschke/FormFox/internal/pkg/billing"
	"github.com/ManuelReschke/FormFox/internal/pkg/cache"
	"github.com/ManuelReschke/FormFox/internal/pkg/database"
	"github.com/ManuelReschke/FormFox/internal/pkg/env"
	"github.com/ManuelReschke/FormFox/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/FormFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/FormFox/internal/pkg/router"
	"github.com/ManuelReschke/FormFox/internal/pkg/session"
	"github.com/ManuelReschke/FormFox/internal/pkg/uploads"
)

func main() {
	app, manager := NewApplication()

	manager.Start()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		manager.Stop()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/formfox to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// background jobs: notification mail and the cancel-reminder sweep
	manager := jobqueue.GetManager()

	uploadCfg, err := uploads.LoadConfig()
	if err != nil {
		log.Fatalf("invalid upload configuration: %v", err)
	}
	var uploadStore uploads.Store
	if uploadCfg.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s3Store, err := uploads.NewS3Store(ctx, uploadCfg)
		cancel()
		if err != nil {
			log.Fatalf("failed to set up upload storage: %v", err)
		}
		uploadStore = s3Store
	}

	repository.InitializeFactory(database.GetDB())
	repos, err := repository.GetGlobalRepositories()
	if err != nil {
		log.Fatalf("failed to set up repositories: %v", err)
	}
	err = controllers.InitializeControllers(controllers.Dependencies{
		Repos:        repos,
		Billing:      billing.NewServiceFromDB(database.GetDB()),
		Mail:         manager.GetQueue(),
		Reminders:    manager,
		Uploads:      uploadStore,
		UploadConfig: uploadCfg,
		Captcha:      hcaptcha.NewVerifierFromEnv(),
		CaptchaSite:  env.GetEnv("HCAPTCHA_SITEKEY", ""),
		BaseURL:      env.GetEnv("APP_BASE_URL", "http://localhost:4000"),
	})
	if err != nil {
		log.Fatalf("failed to set up controllers: %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		Views: html.New(basePath+"views", ".html"),
		BodyLimit: 4 * 5 * 1024 * 1024, // uploads: up to 5 files of the default size
	})

	// ignore and cache favicon
	faviconCfg := favicon.Config{
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=604800",
	}
	if _, err := os.Stat(basePath + "public/assets/icons/favicon.ico"); err == nil {
		faviconCfg.File = basePath + "public/assets/icons/favicon.ico"
	}
	app.Use(favicon.New(faviconCfg))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	session.NewSessionStore()
	err = router.InstallRouter(app, router.Options{
		Repos:          repos,
		LimiterStorage: session.NewRedisStorage(session.LimiterDatabase),
		ApplyLimit:     env.GetEnvInt("APPLY_RATE_LIMIT_PER_MINUTE", 10),
	})
	if err != nil {
		log.Fatalf("failed to install routes: %v", err)
	}

	return app, manager
}
