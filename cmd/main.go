package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/vkotov/talentflow/config"
	"github.com/vkotov/talentflow/database"
	_ "github.com/vkotov/talentflow/docs" // Swagger definition
	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/logger"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/notify"
	"github.com/vkotov/talentflow/internal/paraphrase"
	"github.com/vkotov/talentflow/internal/quiz"
	"github.com/vkotov/talentflow/internal/recruiter"
	"github.com/vkotov/talentflow/internal/repository"
	"github.com/vkotov/talentflow/internal/server"
	"github.com/vkotov/talentflow/internal/session"
	"github.com/vkotov/talentflow/internal/transport"
)

// Bots bundles the two bot transports; each bot owns its renderer.
type Bots struct {
	Candidate         *transport.TelegramClient
	Recruiter         *transport.TelegramClient
	CandidateRenderer *transport.Renderer
	RecruiterRenderer *transport.Renderer
}

func NewBots(cfg *config.Config) *Bots {
	candidate := transport.NewTelegramClient(cfg.Telegram.APIBase, cfg.Candidate.Token, cfg.Telegram.Timeout)
	recruiterBot := transport.NewTelegramClient(cfg.Telegram.APIBase, cfg.Recruiter.Token, cfg.Telegram.Timeout)
	return &Bots{
		Candidate:         candidate,
		Recruiter:         recruiterBot,
		CandidateRenderer: transport.NewRenderer(candidate),
		RecruiterRenderer: transport.NewRenderer(recruiterBot),
	}
}

// Dispatchers hold the per-bot event queues.
type Dispatchers struct {
	Candidate *session.Dispatcher
	Recruiter *session.Dispatcher
}

// @title TalentFlow Hiring Funnel API
// @version 1.0
// @description Webhook ingestion and ops endpoints for the two-bot hiring funnel.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			server.NewGinEngine,
			NewBots,
			func(cfg *config.Config) content.Loader {
				return content.NewLoader(cfg.ContentDir)
			},
		),

		fx.Provide(
			repository.NewUserRepository,
			repository.NewSubmissionRepository,
			repository.NewInterviewRepository,
			repository.NewMessageRepository,
			repository.NewOutboxRepository,
		),

		fx.Provide(
			paraphrase.NewGeminiJudge,
			func(judge *paraphrase.GeminiJudge) *paraphrase.Evaluator {
				return paraphrase.NewEvaluator(judge)
			},
			func(bots *Bots) *quiz.Runner {
				return quiz.NewRunner(bots.CandidateRenderer)
			},
			func(bots *Bots, eval *paraphrase.Evaluator) *paraphrase.Runner {
				return paraphrase.NewRunner(bots.CandidateRenderer, eval)
			},
		),

		fx.Provide(
			recruiter.NewMetricsService,
			recruiter.NewReviewService,
			func(
				bots *Bots,
				metrics recruiter.MetricsService,
				reviews recruiter.ReviewService,
				submissions repository.SubmissionRepository,
				interviews repository.InterviewRepository,
				messages repository.MessageRepository,
			) *recruiter.Engine {
				return recruiter.NewEngine(bots.RecruiterRenderer, metrics, reviews, submissions, interviews, messages)
			},
		),

		fx.Provide(
			func(
				cfg *config.Config,
				bots *Bots,
				loader content.Loader,
				users repository.UserRepository,
				submissions repository.SubmissionRepository,
				interviews repository.InterviewRepository,
				messages repository.MessageRepository,
				quizzes *quiz.Runner,
				rewrites *paraphrase.Runner,
			) *session.Engine {
				return session.NewEngine(bots.CandidateRenderer, loader,
					users, submissions, interviews, messages, quizzes, rewrites, cfg.Admin)
			},
			func(candidate *session.Engine, recruiterEngine *recruiter.Engine) *Dispatchers {
				return &Dispatchers{
					Candidate: session.NewDispatcher(candidate),
					Recruiter: session.NewDispatcher(recruiterEngine),
				}
			},
		),

		fx.Provide(
			func(cfg *config.Config) (*notify.EventPublisher, error) {
				return notify.NewEventPublisher(cfg.AmqpURL, cfg.AmqpExchange)
			},
			func(outbox repository.OutboxRepository, bots *Bots, publisher *notify.EventPublisher) *notify.Notifier {
				return notify.NewNotifier(outbox, bots.CandidateRenderer, publisher)
			},
			func(dispatchers *Dispatchers, bots *Bots, metrics recruiter.MetricsService) *server.WebhookController {
				return server.NewWebhookController(
					dispatchers.Candidate, dispatchers.Recruiter,
					bots.Candidate, bots.Recruiter, metrics)
			},
		),

		fx.Invoke(AutoMigrateDB),
		fx.Invoke(RunApplication),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
}

// RunApplication wires routes and manages the lifecycle of the HTTP server,
// the outbox notifier and the event dispatchers.
func RunApplication(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	ctrl *server.WebhookController,
	notifier *notify.Notifier,
	dispatchers *Dispatchers,
	publisher *notify.EventPublisher,
) {
	server.RegisterRoutes(router, ctrl)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	notifierCtx, stopNotifier := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("TalentFlow server starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			go notifier.Run(notifierCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			stopNotifier()
			dispatchers.Candidate.Close()
			dispatchers.Recruiter.Close()
			publisher.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.User{},
		&model.Submission{},
		&model.InterviewRequest{},
		&model.DeveloperMessage{},
		&model.OutboxEvent{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed")
	return nil
}
