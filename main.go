package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/authd/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

type App struct {
	svc            *Service
	tokens         *TokenEngine
	rateLimiter    *RateLimiter
	allowedOrigins []string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// routes builds the full HTTP surface, including middleware.
func (a *App) routes(store Store) *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)
	r.Use(a.RateLimit)

	// Health check endpoints
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := store.(interface{ ping() bool }); ok && !p.ping() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods("GET")

	// Account lifecycle endpoints
	r.HandleFunc("/register", a.HandleRegister).Methods("POST")
	r.HandleFunc("/verify-email", a.HandleVerifyEmail).Methods("GET")
	r.HandleFunc("/resend-verification-email", a.HandleResendVerification).Methods("POST")
	r.HandleFunc("/login", a.HandleLogin).Methods("POST")
	r.HandleFunc("/refresh", a.HandleRefresh).Methods("POST")
	r.HandleFunc("/request-password-reset", a.HandleRequestPasswordReset).Methods("POST")
	r.HandleFunc("/reset-password", a.HandleResetPassword).Methods("POST")

	// Example route behind access-token auth
	protected := r.PathPrefix("/protected").Subrouter()
	protected.Use(a.RequireAccessToken)
	protected.HandleFunc("", a.HandleProtected).Methods("GET")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store Store
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteStore(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		store = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		}

		p, err := NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		store = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory store (not recommended for production)")
		store = NewMemStore()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	engine, err := NewTokenEngine([]byte(c.SecretKey), store, c.AccessTokenTTL, c.RefreshTokenTTL, c.VerifyTokenTTL, c.ResetTokenTTL)
	if err != nil {
		log.Fatalf("token engine: %v", err)
	}

	var mailer Mailer
	if c.SMTPAddr != "" {
		mailer = NewSMTPMailer(c.SMTPAddr, c.FromEmail)
	} else {
		log.Println("SMTP_ADDR not set, outbound email is logged only")
		mailer = logMailer{}
	}
	mail := NewMailDispatcher(mailer, 64)
	defer mail.Close()

	events := NewEventRecorder(store, 256)
	defer events.Close()

	svc := NewService(store, engine, NewCooldownGuard(), mail, events, c.FrontendDomain, c.ResendCooldown, c.ResetCooldown)

	app := &App{
		svc:            svc,
		tokens:         engine,
		rateLimiter:    NewRateLimiter(c.RateLimitRPS),
		allowedOrigins: c.AllowedOrigins,
	}

	srv := &http.Server{
		Handler:      app.routes(store),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("Starting authd on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed: %+v", err)
	}
	if closer, ok := store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	log.Println("Server exited properly")
}
