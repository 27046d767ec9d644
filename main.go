package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pnpbots/pnptv-payments/app/controllers"
	"github.com/pnpbots/pnptv-payments/app/repository"
	"github.com/pnpbots/pnptv-payments/internal/pkg/cache"
	"github.com/pnpbots/pnptv-payments/internal/pkg/database"
	"github.com/pnpbots/pnptv-payments/internal/pkg/env"
	"github.com/pnpbots/pnptv-payments/internal/pkg/jobqueue"
	"github.com/pnpbots/pnptv-payments/internal/pkg/lock"
	"github.com/pnpbots/pnptv-payments/internal/pkg/payments"
	"github.com/pnpbots/pnptv-payments/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repos := repository.NewFactory(database.GetDB()).GetRepositories()

	handlers := jobqueue.Handlers{
		Activator: jobqueue.NewSubscriptionActivator(repos.Payment, repos.Subscription, repos.Plan),
		History:   jobqueue.LogHistoryRecorder{},
		Notifier:  jobqueue.LogNotifier{},
	}
	manager := jobqueue.GetManager(cache.GetClient(), handlers)
	queue := manager.Queue()

	processor := payments.NewProcessor(
		repos.Payment,
		lock.NewRedisLocker(cache.GetClient()),
		jobqueue.NewQueueDispatcher(queue),
		payments.ProcessorConfig{},
	)
	recovery := payments.NewRecoveryService(
		repos.Payment,
		repos.WebhookEvent,
		processor,
		payments.NewEpaycoStatusClientFromEnv(),
		payments.NewDaimoStatusClientFromEnv(),
	)

	// the sweeper closes the loop: recovered payments replay through the
	// processor, which dispatches back into this queue
	handlers.Sweeper = recovery
	queue.SetHandlers(handlers)
	manager.Start()

	controllers.InitWebhookControllers(processor, recovery, repos)
	controllers.InitAdminControllers(queue)

	app := fiber.New(fiber.Config{
		AppName: "pnptv-payments",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app)

	return app
}
