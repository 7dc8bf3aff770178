package main

import (
	"context"
	"fmt"
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
	"go.uber.org/zap"

	"github.com/speedai/speedai/app/controllers"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/analytics"
	"github.com/speedai/speedai/internal/pkg/apidocs"
	"github.com/speedai/speedai/internal/pkg/apierror"
	"github.com/speedai/speedai/internal/pkg/billing"
	"github.com/speedai/speedai/internal/pkg/cache"
	"github.com/speedai/speedai/internal/pkg/database"
	"github.com/speedai/speedai/internal/pkg/env"
	"github.com/speedai/speedai/internal/pkg/guarantee"
	"github.com/speedai/speedai/internal/pkg/hcaptcha"
	"github.com/speedai/speedai/internal/pkg/jobqueue"
	applogger "github.com/speedai/speedai/internal/pkg/logger"
	"github.com/speedai/speedai/internal/pkg/mail"
	"github.com/speedai/speedai/internal/pkg/marketing"
	"github.com/speedai/speedai/internal/pkg/metrics"
	"github.com/speedai/speedai/internal/pkg/metrics/counter"
	"github.com/speedai/speedai/internal/pkg/objectstore"
	"github.com/speedai/speedai/internal/pkg/reports"
	"github.com/speedai/speedai/internal/pkg/reviews"
	"github.com/speedai/speedai/internal/pkg/router"
	"github.com/speedai/speedai/internal/pkg/sms"
	"github.com/speedai/speedai/internal/pkg/statistics"
)

func main() {
	app, manager := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		zap.L().Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zap.L().Error("server shutdown failed", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "5000"))
	if err := app.Listen(addr); err != nil {
		zap.L().Error("server stopped", zap.Error(err))
	}
	manager.Stop()
	applogger.Sync()
}

// findBasePath locates the directory holding views/ when started from the
// project root or from cmd/speedai.
func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			return path
		}
	}
	panic("Could not find project root directory")
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	if _, err := applogger.InitLogger(applogger.ConfigFromEnv()); err != nil {
		panic(err)
	}
	database.SetupDatabase()
	cache.SetupCache()

	basePath := findBasePath()
	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	baseURL := env.BaseURL()

	// Outbound channels
	transactional := mail.NewSMTPMailer(mail.SMTPConfigFromEnv())
	mail.SetDefault(transactional)
	var campaignMail mail.Sender = transactional
	if api := mail.NewAPIMailerFromEnv(); api.APIKey != "" {
		campaignMail = api
	}
	templates := mail.NewRenderer(basePath + "views")
	twilio := sms.NewTwilioFromEnv()

	var qrStore objectstore.Store
	if cfg, err := objectstore.LoadConfig(); err != nil {
		zap.L().Warn("object storage disabled", zap.Error(err))
	} else if client, err := objectstore.NewClient(context.Background(), cfg); err == nil {
		qrStore = client
	}

	// Domain services
	stats := statistics.NewService(repos.Call, cache.Store{}, analytics.PolicyFromEnv())
	tracking := counter.New(cache.GetClient(), db)
	marketingSvc := marketing.NewService(marketing.Config{
		Repo:          repos.Marketing,
		Notifications: repos.Notification,
		Email:         campaignMail,
		SMS:           twilio,
		Counter:       tracking,
		BaseURL:       baseURL,
		LinkSecret:    env.GetEnv("LINK_SIGNING_SECRET", env.GetEnv("SESSION_SECRET", "")),
	})
	reviewRequests := reviews.NewRequests(reviews.RequestsConfig{
		Repo:      repos.Review,
		Email:     transactional,
		SMS:       twilio,
		Templates: templates,
		Store:     qrStore,
		BaseURL:   baseURL,
	})
	reviewSync := reviews.NewSyncer(repos.Review, repos.Notification, reviews.DefaultConnectors(reviews.NewGooglePlacesFromEnv()))

	var payments billing.Payments
	if sp := billing.NewStripePayments(env.GetEnv("STRIPE_SECRET_KEY", "")); sp != nil {
		payments = sp
	}
	guaranteeSvc := guarantee.NewService(guarantee.Config{
		Repo:          repos.Guarantee,
		Notifications: repos.Notification,
		Payments:      payments,
		Email:         transactional,
		Templates:     templates,
		BusinessName: func(userID uint) string {
			if u, err := repos.User.GetByID(userID); err == nil && u.CompanyName != "" {
				return u.CompanyName
			}
			return "SpeedAI"
		},
	})
	reportGen := reports.NewGenerator(reports.Config{
		Builder:       stats,
		Reports:       repos.Report,
		Users:         repos.User,
		Notifications: repos.Notification,
		Email:         transactional,
		Templates:     templates,
		BaseURL:       baseURL,
	})

	// Background jobs
	manager := jobqueue.GetManager()
	jobqueue.Processors{
		Campaigns:      marketingSvc,
		ReviewRequests: reviewRequests,
		Reports:        reportGen,
	}.Register(manager.GetQueue())
	manager.Configure(jobqueue.Tasks{
		Campaigns: marketingSvc,
		Counters:  tracking,
		Reviews:   reviewSync,
		Reports:   true,
	}, jobqueue.DefaultIntervals())
	manager.Start()

	deps := &controllers.Deps{
		Repos:               repos,
		Stats:               stats,
		Marketing:           marketingSvc,
		ReviewRequests:      reviewRequests,
		ReviewSync:          reviewSync,
		Guarantee:           guaranteeSvc,
		Billing:             billing.NewServiceFromDB(db),
		Jobs:                manager.GetQueue(),
		Queue:               manager.GetQueue(),
		Mail:                transactional,
		Templates:           templates,
		Captcha:             hcaptcha.NewVerifierFromEnv(),
		BaseURL:             baseURL,
		StripeWebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		Now:                 time.Now,
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:        html.New(basePath+"views", ".html"),
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: apierror.ErrorHandler,
	})

	// the front-end serves its own icon; answer browsers without hitting the router
	app.Use(favicon.New())

	// recovery, logging and request metrics
	app.Use(recover.New(), logger.New(), metrics.Middleware())

	// prometheus scrape endpoint + fiber monitor
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	})
	app.Get("/metrics", metricsAuth, metrics.Handler())
	app.Get("/monitor", metricsAuth, monitor.New())

	// SWAGGER / OPENAPI
	specPath := basePath + "public/docs/v1/openapi.yml"
	if _, err := apidocs.Load(specPath); err != nil {
		zap.L().Warn("openapi document invalid", zap.String("path", specPath), zap.Error(err))
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: specPath,
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, deps)

	return app, manager
}
