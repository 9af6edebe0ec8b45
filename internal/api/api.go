package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/susu3304/piebot/internal/commands"
)

type dispatcher interface {
	Dispatch(ctx context.Context, cmd commands.Command) commands.Response
}

type pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	router     *mux.Router
	dispatcher dispatcher
	store      pinger
	jwtSecret  []byte
	server     *http.Server
}

func New(bind, jwtSecret string, d dispatcher, store pinger) *API {
	api := &API{
		router:     mux.NewRouter(),
		dispatcher: d,
		store:      store,
		jwtSecret:  []byte(jwtSecret),
	}
	api.setupRoutes()

	// Bearer tokens only, so credentials stay off with the wildcard origin.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	api.server = &http.Server{
		Addr:              bind,
		Handler:           cors.New(corsOptions).Handler(api.router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

func (a *API) setupRoutes() {
	// Public endpoints
	a.router.HandleFunc("/api/health", a.handleHealth).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/commands", a.handleCommand).Methods("POST")
	protected.HandleFunc("/report", a.handleReport).Methods("GET")
}

func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// Start serves until Shutdown is called.
func (a *API) Start() error {
	log.Printf("API server listening on http://%s", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
