package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"storyreel/internal/http/handlers"
	"storyreel/internal/infra/geoip"
	"storyreel/internal/middleware"
)

// Options carries the cross-cutting wiring for the router.
type Options struct {
	Logger          zerolog.Logger
	GeoIP           geoip.CountryResolver
	CORSOrigins     []string
	APIToken        string
	RateLimitPerMin int
	DefaultLocale   string
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger, opts.GeoIP),
		middleware.Locale(opts.DefaultLocale),
	)
	if len(opts.CORSOrigins) > 0 {
		r.Use(middleware.CORS(opts.CORSOrigins))
	}
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthToken(opts.APIToken))

		r.Post("/v1/videos", app.SubmitVideo)
		r.Post("/v1/images", app.SubmitImage)

		r.Route("/v1/jobs/{job_id}", func(r chi.Router) {
			r.Get("/", app.JobStatus)
			r.Get("/stream", app.StreamJob)
			r.Delete("/", app.CancelJob)
		})

		r.Route("/v1/batches", func(r chi.Router) {
			r.Post("/", app.SubmitBatch)
			r.Get("/{batch_id}", app.BatchStatus)
		})
	})

	return r
}
