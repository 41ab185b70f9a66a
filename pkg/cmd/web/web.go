package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/openmusic/pkg/gradio"
	"github.com/pkg/browser"
)

type Config struct {
	Debug   bool
	BaseURL string
	Route   string
	Proxy   string
	Timeout time.Duration

	Addr        string
	Credentials map[string]string
	Open        bool

	Width  int
	Height int
	FPS    int
	Format string
}

//go:embed static/*
var staticContent embed.FS

// Serve starts the web service.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 5 * time.Minute
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return fmt.Errorf("web: invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	client := gradio.New(&gradio.Config{
		BaseURL: cfg.BaseURL,
		Route:   cfg.Route,
		Debug:   cfg.Debug,
		Client:  httpClient,
	})

	handler, err := newHandler(ctx, cfg, client)
	if err != nil {
		return err
	}

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: handler,
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("http://localhost:%d", port)
		}
		log.Printf("web: starting server on %s\n", note)
		if cfg.Open {
			go func() {
				time.Sleep(500 * time.Millisecond)
				if err := browser.OpenURL(note); err != nil {
					log.Printf("web: couldn't open browser: %v\n", err)
				}
			}()
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("web: failed to start server: %v\n", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: couldn't shutdown server: %w", err)
	}
	return nil
}

func newHandler(ctx context.Context, cfg *Config, client *gradio.Client) (http.Handler, error) {
	// Create static content
	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return nil, fmt.Errorf("web: couldn't load static content: %w", err)
	}

	// Create router
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	// Add BasicAuth middleware
	if len(cfg.Credentials) > 0 {
		mux.Use(middleware.BasicAuth("openmusic", cfg.Credentials))
	}

	// Create subrouter for api endpoints
	r := mux.Group(func(r chi.Router) {
		if cfg.Debug {
			r.Use(middleware.Logger)
		}
	})

	// Handler to serve the static files
	mux.Get("/*", http.StripPrefix("/", http.FileServer(http.FS(staticFS))).ServeHTTP)

	r.Get("/api/styles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, gradio.Styles)
	})

	// Generation may take minutes
	r.With(middleware.Timeout(10*time.Minute)).Post("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("couldn't decode request: %w", err))
			return
		}
		res, err := client.Generate(r.Context(), &gradio.Request{
			Description: req.Description,
			Duration:    time.Duration(req.Duration * float64(time.Second)),
			Style:       req.Style,
		})
		if err != nil {
			log.Println("web: couldn't generate:", err)
			writeError(w, statusCode(err), err)
			return
		}
		writeJSON(w, http.StatusOK, &generateResponse{
			URL:    res.URL,
			Name:   res.Name,
			Status: res.Status,
		})
	})

	// Websocket connections outlive any request timeout
	v := &visualizeHandler{
		ctx:    ctx,
		client: client,
		width:  cfg.Width,
		height: cfg.Height,
		fps:    cfg.FPS,
		format: cfg.Format,
		debug:  cfg.Debug,
	}
	r.Get("/api/visualize", v.ServeHTTP)

	return mux, nil
}

type generateRequest struct {
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Style       string  `json:"style"`
}

type generateResponse struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusCode maps generation errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, gradio.ErrGenerationRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gradio.ErrConfigUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, gradio.ErrRequestFailed), errors.Is(err, gradio.ErrUnexpectedResponseFormat):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &errorResponse{Error: err.Error()})
}
