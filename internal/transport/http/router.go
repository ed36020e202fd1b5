// Package httptransport is the portal's sole operation surface. Handlers stay
// thin: decode, delegate to a service, encode. The tenancy and compliance
// rules live in the services; nothing here touches a store directly.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certportal/internal/audit"
	"certportal/internal/availability"
	"certportal/internal/compliance"
	docsservice "certportal/internal/docs/service"
	"certportal/internal/identity"
	"certportal/internal/org/service"
	"certportal/internal/platform/metrics"
	"certportal/internal/platform/middleware"
)

// Services bundles everything the router exposes.
type Services struct {
	Provider     identity.Provider
	Verifier     middleware.TokenVerifier
	Docs         *docsservice.Service
	Compliance   *compliance.Service
	Orgs         *service.Service
	AuditQuery   *audit.Query
	Availability *availability.Service
	Recorder     *audit.Recorder
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// NewRouter wires the middleware chain and all routes. The availability gate
// runs after authentication so ADMIN stays exempt during maintenance.
func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(s.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(s.Logger))
	if s.Metrics != nil {
		r.Use(middleware.Latency(s.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authHandler := &AuthHandler{provider: s.Provider, recorder: s.Recorder}
	r.Post("/auth/login", authHandler.handleLogin)

	docs := &DocsHandler{docs: s.Docs}
	compl := &ComplianceHandler{compliance: s.Compliance}
	orgs := &OrgHandler{orgs: s.Orgs}
	auditH := &AuditHandler{query: s.AuditQuery}
	avail := &AvailabilityHandler{availability: s.Availability}

	// Status reads and the realtime stream stay reachable during maintenance
	// so locked-out clients can see why and when the portal returns.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.Verifier, s.Logger))

		r.Route("/availability", func(r chi.Router) {
			r.Get("/", avail.handleStatus)
			r.Get("/stream", avail.handleStream)
			r.Post("/maintenance", avail.handleSchedule)
			r.Post("/online", avail.handleSetOnline)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.Verifier, s.Logger))
		r.Use(middleware.Availability(s.Availability))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docs.handleList)
			r.Get("/search", docs.handleSearch)
			r.Post("/", docs.handleUpload)
			r.Get("/{nodeID}", docs.handleFetch)
			r.Get("/{nodeID}/breadcrumbs", docs.handleBreadcrumbs)
			r.Get("/{nodeID}/download", docs.handleDownloadURL)
			r.Patch("/{nodeID}/rename", docs.handleRename)
			r.Patch("/{nodeID}/move", docs.handleMove)
			r.Delete("/{nodeID}", docs.handleDelete)
			r.Post("/{nodeID}/inspect", compl.handleInspect)
		})
		r.Post("/folders", docs.handleCreateFolder)

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", orgs.handleList)
			r.Post("/", orgs.handleCreate)
			r.Get("/{orgID}", orgs.handleGet)
			r.Patch("/{orgID}", orgs.handleUpdate)
			r.Post("/{orgID}/deactivate", orgs.handleDeactivate)
			r.Post("/{orgID}/reactivate", orgs.handleReactivate)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", auditH.handleList)
			r.Get("/{entryID}/investigation", auditH.handleInvestigate)
		})
	})

	return r
}
