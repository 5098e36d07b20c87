package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saeid-a/GroupCoachBack/internal/config"
	"github.com/saeid-a/GroupCoachBack/internal/handlers"
	"github.com/saeid-a/GroupCoachBack/internal/middleware"
	"github.com/saeid-a/GroupCoachBack/internal/repository"
	"github.com/saeid-a/GroupCoachBack/internal/services"
	chatws "github.com/saeid-a/GroupCoachBack/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) error {
	sessionRepo := repository.NewGroupSessionRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	chatMessageRepo := repository.NewChatMessageRepository(db)

	locks := services.NewSessionLocks()
	payments := services.NewPlaceholderPaymentGateway()
	meetings := services.NewUUIDMeetingProvider(cfg.MeetingBaseURL)
	notifier := services.NewLogNotificationGateway()
	eventBus := services.NewChatEventBus()

	sessionService := services.NewGroupSessionService(sessionRepo, locks, meetings, notifier)
	participantService := services.NewParticipantService(sessionRepo, participantRepo, locks, payments, notifier)
	chatService := services.NewSessionChatService(sessionRepo, participantRepo, chatMessageRepo, eventBus)
	chatService.BindEngagement(participantService)
	sessionService.BindLedger(participantService)
	sessionService.BindChat(chatService)

	hub := chatws.NewHub(eventBus)
	go hub.Run()

	sessionHandler := handlers.NewGroupSessionHandler(sessionService)
	participantHandler := handlers.NewParticipantHandler(participantService)
	chatHandler := handlers.NewSessionChatHandler(chatService, hub, cfg.JWTSecret)

	api := app.Group("/api")
	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("", sessionHandler.CreateSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/discover", sessionHandler.DiscoverSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Put("/:id", sessionHandler.UpdateSession)
	sessions.Post("/:id/start", sessionHandler.StartSession)
	sessions.Post("/:id/end", sessionHandler.EndSession)
	sessions.Post("/:id/cancel", sessionHandler.CancelSession)

	sessions.Post("/:id/register", participantHandler.Register)
	sessions.Delete("/:id/register", participantHandler.CancelRegistration)
	sessions.Get("/:id/registration", participantHandler.GetRegistration)
	sessions.Get("/:id/participants", participantHandler.ListParticipants)
	sessions.Post("/:id/join", participantHandler.Join)
	sessions.Post("/:id/leave", participantHandler.Leave)
	sessions.Post("/:id/rating", participantHandler.SubmitRating)
	sessions.Post("/:id/payment", participantHandler.ConfirmPayment)

	sessions.Post("/:id/messages", chatHandler.SendMessage)
	sessions.Get("/:id/messages", chatHandler.GetMessages)
	sessions.Delete("/:id/messages", chatHandler.ClearChat)
	sessions.Post("/:id/announcements", chatHandler.SendAnnouncement)
	sessions.Post("/:id/polls", chatHandler.CreatePoll)
	sessions.Post("/:id/questions", chatHandler.AskQuestion)
	sessions.Get("/:id/questions/top", chatHandler.GetTopQuestions)

	messages := authProtected.Group("/messages")
	messages.Put("/:id", chatHandler.EditMessage)
	messages.Delete("/:id", chatHandler.DeleteMessage)
	messages.Post("/:id/reactions", chatHandler.AddReaction)
	messages.Delete("/:id/reactions", chatHandler.RemoveReaction)
	messages.Post("/:id/votes", chatHandler.VotePoll)
	messages.Post("/:id/close", chatHandler.ClosePoll)
	messages.Post("/:id/answers", chatHandler.AnswerQuestion)
	messages.Post("/:id/upvotes", chatHandler.UpvoteQuestion)
	messages.Post("/:id/pin", chatHandler.PinMessage)
	messages.Delete("/:id/pin", chatHandler.UnpinMessage)
	messages.Post("/:id/hide", chatHandler.HideMessage)
	messages.Post("/:id/highlight", chatHandler.HighlightMessage)

	api.Use("/v1/ws/:id", chatHandler.WebSocketAuth)
	api.Get("/v1/ws/:id", websocket.New(chatHandler.HandleWebSocket))

	return registerDocs(app, cfg)
}
