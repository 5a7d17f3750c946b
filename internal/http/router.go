package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/manutencao/requisicoes/internal/config"
	httpmiddleware "github.com/manutencao/requisicoes/internal/http/middleware"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/service"
)

type authService interface {
	httpmiddleware.Authenticator
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, actor maintenance.Actor) (service.Profile, error)
}

type profileLister interface {
	ListProfiles(ctx context.Context, actor maintenance.Actor) ([]service.Profile, error)
}

type attachmentService interface {
	Upload(ctx context.Context, actor maintenance.Actor, numero int64, upload maintenance.AttachmentUpload) (*maintenance.Attachment, error)
	List(ctx context.Context, actor maintenance.Actor, numero int64) ([]maintenance.Attachment, error)
	Download(ctx context.Context, actor maintenance.Actor, numero, id int64) (*maintenance.Attachment, []byte, error)
	Delete(ctx context.Context, actor maintenance.Actor, numero, id int64) error
}

type notificationService interface {
	List(ctx context.Context, actor maintenance.Actor) ([]notification.Notification, error)
	MarkAsRead(ctx context.Context, actor maintenance.Actor, id int64) (notification.Notification, error)
	MarkAllAsRead(ctx context.Context, actor maintenance.Actor) (int64, error)
}

// Deps reúne as dependências dos handlers.
type Deps struct {
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Auth          authService
	Profiles      profileLister
	Requests      *maintenance.Service
	Attachments   attachmentService
	Notifications notificationService
}

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	auth          authService
	profiles      profileLister
	requests      *maintenance.Service
	attachments   attachmentService
	notifications notificationService
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	h := &Handler{
		cfg:           cfg,
		pool:          deps.Pool,
		redis:         deps.Redis,
		auth:          deps.Auth,
		profiles:      deps.Profiles,
		requests:      deps.Requests,
		attachments:   deps.Attachments,
		notifications: deps.Notifications,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.StripSlashes)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))
			public.Post("/auth/login", h.Login)
		})

		api.Group(func(private chi.Router) {
			private.Use(httpmiddleware.Auth(h.auth))
			private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

			private.Post("/auth/logout", h.Logout)
			private.Get("/profiles", h.ListProfiles)
			private.Get("/profiles/me", h.Me)

			private.Route("/requests", func(req chi.Router) {
				req.Get("/", h.ListRequests)
				req.Post("/", h.CreateRequest)
				req.Get("/my_requests", h.MyRequests)
				req.Get("/dashboard_data", h.Dashboard)

				req.Route("/{id}", func(item chi.Router) {
					item.Get("/", h.GetRequest)
					item.Delete("/", h.DeleteRequest)
					item.Route("/attachments", func(att chi.Router) {
						att.Get("/", h.ListAttachments)
						att.Post("/", h.UploadAttachment)
						att.Get("/{attachmentID}", h.DownloadAttachment)
						att.Delete("/{attachmentID}", h.DeleteAttachment)
					})
					item.Group(func(staff chi.Router) {
						staff.Use(httpmiddleware.RequireTransition)
						staff.Patch("/", h.UpdateRequest)
						staff.Post("/accept", h.AcceptRequest)
						staff.Post("/start_maintenance", h.StartMaintenance)
						staff.Post("/complete_maintenance", h.CompleteMaintenance)
					})
				})
			})

			private.Route("/notifications", func(n chi.Router) {
				n.Get("/", h.ListNotifications)
				n.Post("/mark_all_as_read", h.MarkAllNotificationsAsRead)
				n.Post("/{id}/mark_as_read", h.MarkNotificationAsRead)
			})
		})
	})

	return r
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var dbErr, redisErr error
	if h.pool != nil {
		dbErr = h.pool.Ping(ctx)
	}
	if h.redis != nil {
		redisErr = h.redis.Ping(ctx).Err()
	}

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, CodeInternal, "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
