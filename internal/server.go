package internal

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"time"

	"equiptrack-api/internal/auth"
	"equiptrack-api/internal/config"
	"equiptrack-api/internal/handlers"
	"equiptrack-api/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Ledger     *ledger.Ledger
}

func NewServer(dsn string, cfg *config.Config) *Server {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("Failed to open database connection:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Database ping failed:", err)
	}

	// Also create a pgxpool for the importer
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to create pgxpool:", err)
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)

	// Validate JWT configuration
	if err := jwtManager.ValidateConfig(); err != nil {
		log.Fatal("JWT configuration validation failed:", err)
	}

	// Initialize metrics
	metrics := NewMetrics()

	s := &Server{
		DB:         db,
		Pool:       pool,
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    metrics,
		Ledger:     ledger.New(db),
	}
	// Mount public routes FIRST (no middleware)
	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", func(w http.ResponseWriter, r *http.Request) {
		if err := s.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write([]byte("db: ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Public auth routes (no JWT required)
	s.Router.Post("/auth/login", s.loginAdmin)
	s.mountDocs(s.Router)

	// Mount metrics if enabled
	if os.Getenv("ENABLE_METRICS") == "true" {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	// Create a protected route group with middleware
	s.Router.Group(func(r chi.Router) {
		// Apply middleware to this group only
		r.Use(auth.AuthMiddleware(s.JWTManager))

		// Mount protected routes
		s.mountProtectedRoutes(r)
	})

	return s
}

// Close properly shuts down the server and cleans up resources
func (s *Server) Close(ctx context.Context) error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	// Check if Swagger is enabled
	if os.Getenv("ENABLE_SWAGGER") != "true" {
		return
	}

	// Serve the raw YAML
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Serve Swagger UI page
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>EquipTrack API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; border-bottom: 3px solid #3b82f6; }
        .swagger-ui .topbar .download-url-wrapper { display: none; }
        .swagger-ui .info { margin: 20px 0; }
        .swagger-ui .info .title { color: #1f2937; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.presets.standalone
                ],
                layout: "StandaloneLayout",
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all protected routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router) {
	// Transaction ledger - writes require the admin role
	r.Get("/transactions", s.listTransactions)
	r.Get("/transactions/overdue", s.listOverdueTransactions)
	r.Get("/transactions/{id}", s.getTransaction)
	r.Post("/transactions/checkout", auth.MustRole("admin")(http.HandlerFunc(s.checkoutEquipment)).(http.HandlerFunc))
	r.Post("/transactions/checkin", auth.MustRole("admin")(http.HandlerFunc(s.checkinEquipment)).(http.HandlerFunc))
	r.Post("/transactions/quick-checkout", auth.MustRole("admin")(http.HandlerFunc(s.quickCheckout)).(http.HandlerFunc))
	r.Post("/transactions/quick-checkin", auth.MustRole("admin")(http.HandlerFunc(s.quickCheckin)).(http.HandlerFunc))

	// Equipment
	r.Get("/equipment", s.listEquipment)
	r.Get("/equipment/{id}", s.getEquipment)
	r.Post("/equipment", auth.MustRole("admin")(http.HandlerFunc(s.createEquipment)).(http.HandlerFunc))
	r.Put("/equipment/{id}", auth.MustRole("admin")(http.HandlerFunc(s.updateEquipment)).(http.HandlerFunc))
	r.Delete("/equipment/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteEquipment)).(http.HandlerFunc))

	// Lookup tables
	r.Get("/equipment/categories", s.listCategories)
	r.Get("/equipment/tags", s.listTags)

	// Employees
	r.Get("/employees", s.listEmployees)
	r.Get("/employees/search/{term}", s.searchEmployees)
	r.Get("/employees/{id}", s.getEmployee)
	r.Post("/employees", auth.MustRole("admin")(http.HandlerFunc(s.createEmployee)).(http.HandlerFunc))
	r.Put("/employees/{id}", auth.MustRole("admin")(http.HandlerFunc(s.updateEmployee)).(http.HandlerFunc))
	r.Put("/employees/{id}/deactivate", auth.MustRole("admin")(http.HandlerFunc(s.deactivateEmployee)).(http.HandlerFunc))
	r.Delete("/employees/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deactivateEmployee)).(http.HandlerFunc))

	// Bundles
	r.Get("/bundles", s.listBundles)
	r.Get("/bundles/{id}", s.getBundle)
	r.Post("/bundles", auth.MustRole("admin")(http.HandlerFunc(s.createBundle)).(http.HandlerFunc))
	r.Put("/bundles/{id}", auth.MustRole("admin")(http.HandlerFunc(s.updateBundle)).(http.HandlerFunc))
	r.Delete("/bundles/{id}", auth.MustRole("admin")(http.HandlerFunc(s.deleteBundle)).(http.HandlerFunc))
	r.Post("/bundles/{id}/checkout", auth.MustRole("admin")(http.HandlerFunc(s.checkoutBundle)).(http.HandlerFunc))
	r.Post("/bundles/{id}/checkin", auth.MustRole("admin")(http.HandlerFunc(s.checkinBundle)).(http.HandlerFunc))

	// Employee roster import - admin only
	importsHandler := handlers.NewImportsHandler(s.Pool)
	r.Post("/imports/employees", auth.MustRole("admin")(http.HandlerFunc(importsHandler.UploadEmployees)).(http.HandlerFunc))

	// Admin account management
	r.Post("/admins", auth.MustRole("admin")(http.HandlerFunc(s.createAdmin)).(http.HandlerFunc))
	r.Put("/auth/change-password", s.changePassword)
}
