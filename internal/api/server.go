package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/training-engine/internal/certificates"
	"github.com/terra-clan/training-engine/internal/chat"
	"github.com/terra-clan/training-engine/internal/config"
	"github.com/terra-clan/training-engine/internal/enrollment"
	"github.com/terra-clan/training-engine/internal/learning"
	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	repo           storage.Repository
	enrollment     *enrollment.Service
	learning       *learning.Service
	certificates   *certificates.Engine
	chatHub        *chat.Hub
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	repo storage.Repository,
	enrollmentSvc *enrollment.Service,
	learningSvc *learning.Service,
	certEngine *certificates.Engine,
	chatHub *chat.Hub,
) *Server {
	s := &Server{
		config:         cfg,
		repo:           repo,
		enrollment:     enrollmentSvc,
		learning:       learningSvc,
		certificates:   certEngine,
		chatHub:        chatHub,
		authMiddleware: NewAuthMiddleware(repo),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	trainerOnly := s.authMiddleware.RequireRole(models.RoleTrainer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Formations
		r.Route("/formations", func(r chi.Router) {
			r.Get("/", s.handleListFormations)
			r.With(trainerOnly).Post("/", s.handleCreateFormation)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFormation)
				r.With(trainerOnly).Put("/", s.handleUpdateFormation)

				r.Get("/modules", s.handleListModules)
				r.With(trainerOnly).Post("/modules", s.handleCreateModule)

				// Certificates
				r.Get("/eligibility", s.handleCheckEligibility)
				r.Post("/certificate", s.handleGenerateCertificate)
				r.Get("/certificate", s.handleGetCertificate)

				// Chat
				r.Get("/messages", s.handleListMessages)
				r.Get("/chat", s.handleChatWS)
			})
		})

		// Enrollment
		r.Post("/enroll", s.handleJoinByCode)

		// Modules
		r.Route("/modules/{id}", func(r chi.Router) {
			r.With(trainerOnly).Delete("/", s.handleDeleteModule)

			r.Get("/lessons", s.handleListLessons)
			r.With(trainerOnly).Post("/lessons", s.handleCreateLesson)

			r.Get("/quiz", s.handleListQuizQuestions)
			r.With(trainerOnly).Post("/quiz", s.handleCreateQuizQuestion)
			r.Post("/quiz/submit", s.handleSubmitQuiz)

			r.Post("/complete", s.handleCompleteModule)
			r.Delete("/complete", s.handleUncompleteModule)
		})

		// Lessons
		r.Route("/lessons/{id}", func(r chi.Router) {
			r.With(trainerOnly).Delete("/", s.handleDeleteLesson)
			r.Post("/complete", s.handleCompleteLesson)
			r.Delete("/complete", s.handleUncompleteLesson)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
