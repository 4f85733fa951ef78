package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/app"
	"github.com/noah-isme/jersey-studio/internal/auth"
	"github.com/noah-isme/jersey-studio/internal/cart"
	"github.com/noah-isme/jersey-studio/internal/catalog"
	"github.com/noah-isme/jersey-studio/internal/checkout"
	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/config"
	"github.com/noah-isme/jersey-studio/internal/design"
	"github.com/noah-isme/jersey-studio/internal/health"
	"github.com/noah-isme/jersey-studio/internal/obs"
	"github.com/noah-isme/jersey-studio/internal/payment"
	"github.com/noah-isme/jersey-studio/internal/ratelimit"
	"github.com/noah-isme/jersey-studio/internal/security"
	"github.com/noah-isme/jersey-studio/internal/shipping"
	"github.com/noah-isme/jersey-studio/internal/subscription"
)

const metricsNamespace = "jersey"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	tracing, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "jersey-studio-api",
		Endpoint:      cfg.TracingEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	redisClient, err := app.NewRedis(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	deps, err := app.Build(cfg, logger, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire dependencies")
	}
	router, err := newRouter(cfg, deps, logger, tracing.Enabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("payment_provider", deps.Payments.Name()).Bool("design_async", cfg.DesignAsync).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Dur("grace", cfg.ShutdownGracePeriod).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, tracingEnabled bool) (http.Handler, error) {
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.AuthJWTSecret,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		return nil, err
	}
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: cfg.AccessCookie}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	quotaStore, err := ratelimit.NewQuotaStore(deps.Redis, "quota:design")
	if err != nil {
		return nil, err
	}
	designQuota, err := ratelimit.Quota{
		Rate: cfg.DesignRateLimit,
		OnError: func(err error) {
			logger.Error().Err(err).Msg("design quota check failed")
		},
	}.Middleware(quotaStore)
	if err != nil {
		return nil, err
	}
	apiLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "rl:api"},
		Config:  ratelimit.Config{Key: ratelimit.ByUserOrIP, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Catalog: deps.Catalog, Currency: cfg.CurrencyCode, MaxAge: 5 * time.Minute})
	cartHandler := &cart.Handler{Svc: deps.Carts, Subscriptions: deps.Subscriptions, Logger: logger}
	subscriptionHandler := &subscription.Handler{Resolver: deps.Subscriptions, Logger: logger}
	designHandler := &design.Handler{Svc: deps.Designs, Logger: logger}
	shippingHandler := &shipping.Handler{Quoter: deps.Quoter, Carts: deps.Carts, Subscriptions: deps.Subscriptions, Logger: logger}
	checkoutHandler := &checkout.Handler{Svc: deps.Checkout, Logger: logger}
	webhookHandler := payment.Webhook{
		Providers: map[string]payment.Provider{deps.Payments.Name(): deps.Payments},
		Checkouts: deps.Checkout,
		Replay:    deps.Redis,
		ReplayTTL: cfg.WebhookReplayTTL,
		Events:    deps.Events,
		Logger:    logger,
	}
	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"redis": health.RedisProbe(deps.Redis),
		},
		Timeout: 300 * time.Millisecond,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(cfg.HTTPMetricsBuckets), nil)}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger, SkipPaths: []string{"/health/live", "/health/ready", "/metrics"}}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.BodyLimit{Max: cfg.HTTPBodyLimitBytes}.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		// Webhooks are signed by the provider and must not be throttled per IP.
		v.Post("/payments/webhook/{provider}", webhookHandler.Handle)

		v.Group(func(api chi.Router) {
			api.Use(authMiddleware.Authenticate)
			api.Use(apiLimit.Middleware)

			api.Get("/catalog", catalogHandler.List)
			api.Get("/catalog/products/{sku}", catalogHandler.ProductDetail)
			api.Get("/me/subscription", subscriptionHandler.Me)

			api.Route("/designs", func(d chi.Router) {
				d.With(authMiddleware.RequireAuth, designQuota, idem.Middleware).Post("/", designHandler.Create)
				d.Get("/{id}", designHandler.Get)
			})

			api.Route("/carts", func(c chi.Router) {
				c.Get("/{id}", cartHandler.Get)
				c.Get("/{id}/pricing", cartHandler.Pricing)
				c.Post("/{id}/shipping-quotes", shippingHandler.Quotes)
				c.Group(func(g chi.Router) {
					g.Use(idem.Middleware)
					g.Post("/", cartHandler.Create)
					g.Put("/{id}/design", cartHandler.SetDesign)
					g.Post("/{id}/items", cartHandler.AddItem)
					g.Patch("/{id}/items/{itemId}", cartHandler.UpdateItem)
					g.Delete("/{id}/items/{itemId}", cartHandler.RemoveItem)
					g.Post("/{id}/add-ons", cartHandler.AddAddOn)
					g.Delete("/{id}/add-ons/{addOnId}", cartHandler.RemoveAddOn)
					g.Put("/{id}/roster", cartHandler.SetRoster)
					g.Delete("/{id}/roster", cartHandler.ClearRoster)
				})
			})

			api.Route("/checkout", func(c chi.Router) {
				c.Use(authMiddleware.RequireAuth)
				c.With(idem.Middleware).Post("/", checkoutHandler.Begin)
				c.Get("/{id}", checkoutHandler.Get)
			})
		})
	})
	return r, nil
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
