package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/carelink/carelink-server/internal/appointment"
	"github.com/carelink/carelink-server/internal/chat"
	"github.com/carelink/carelink-server/internal/config"
	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/realtime"
	"github.com/carelink/carelink-server/internal/stats"
)

type CareLinkApp struct {
	log            *log.Logger
	db             database.CareLinkRepository
	mux            *http.Server
	rt             *realtime.Server
	appointments   *appointment.Service
	chats          *chat.Service
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewCareLinkApp(mux *http.ServeMux, logger *log.Logger, rt *realtime.Server,
	appointments *appointment.Service, chats *chat.Service,
	db database.CareLinkRepository, st stats.StatsProvider, cfg *config.Config) *CareLinkApp {

	s := &CareLinkApp{
		log:          logger,
		db:           db,
		rt:           rt,
		appointments: appointments,
		chats:        chats,
		stats:        st,
	}
	if cfg != nil {
		s.signingKey = cfg.SigningKey
		s.allowedOrigins = cfg.AllowedOrigins
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("GET /api/providers", s.listProviders)

	mux.HandleFunc("POST /api/appointments", s.optionalAuthMiddleware(s.createAppointment))
	mux.HandleFunc("GET /api/appointments", s.authMiddleware(s.listAppointments))
	mux.HandleFunc("POST /api/appointments/{id}/confirm", s.authMiddleware(s.confirmAppointment))
	mux.HandleFunc("POST /api/appointments/{id}/reject", s.authMiddleware(s.rejectAppointment))
	mux.HandleFunc("POST /api/appointments/{id}/cancel", s.authMiddleware(s.cancelAppointment))
	mux.HandleFunc("POST /api/appointments/{id}/complete", s.authMiddleware(s.completeAppointment))

	mux.HandleFunc("POST /api/conversations", s.authMiddleware(s.ensureConversation))
	mux.HandleFunc("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/conversations/{id}/read", s.authMiddleware(s.markConversationRead))

	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("GET /api/notifications/unread-count", s.authMiddleware(s.unreadNotificationCount))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	var origins []string
	if cfg != nil {
		origins = cfg.AllowedOrigins
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	var addr string
	if cfg != nil {
		addr = cfg.ServerAddr
	}

	s.mux = &http.Server{
		Addr:    addr,
		Handler: h,
	}

	return s
}

func (s *CareLinkApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CareLinkApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *CareLinkApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check failed:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
