package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	credentialhandler "mdlgate/internal/credential/handler"
	credentialmetrics "mdlgate/internal/credential/metrics"
	"mdlgate/internal/credential/sdjwt"
	credential "mdlgate/internal/credential/service"
	issuanceadapters "mdlgate/internal/issuance/adapters"
	issuancehandler "mdlgate/internal/issuance/handler"
	issuancemetrics "mdlgate/internal/issuance/metrics"
	issuance "mdlgate/internal/issuance/service"
	issuancestore "mdlgate/internal/issuance/store"
	"mdlgate/internal/issuance/workers/cleanup"
	"mdlgate/internal/platform/config"
	"mdlgate/internal/platform/health"
	"mdlgate/internal/platform/keys"
	"mdlgate/internal/platform/logger"
	"mdlgate/internal/platform/metrics"
	"mdlgate/internal/platform/tracer"
	"mdlgate/internal/presentation/envelope"
	presentationhandler "mdlgate/internal/presentation/handler"
	presentationmetrics "mdlgate/internal/presentation/metrics"
	presentationmodels "mdlgate/internal/presentation/models"
	presentation "mdlgate/internal/presentation/service"
	presentationstore "mdlgate/internal/presentation/store"
	"mdlgate/internal/presentation/verifier"
	ratelimit "mdlgate/internal/ratelimit/middleware"
	ratelimitmodels "mdlgate/internal/ratelimit/models"
	"mdlgate/internal/ratelimit/store/bucket"
	httptransport "mdlgate/internal/transport/http"
	trusthandler "mdlgate/internal/trust/handler"
	trustmetrics "mdlgate/internal/trust/metrics"
	trust "mdlgate/internal/trust/service"
	"mdlgate/internal/trust/source"
	truststore "mdlgate/internal/trust/store"
	"mdlgate/pkg/platform/audit"
	"mdlgate/pkg/platform/middleware/request"
)

const (
	shutdownTimeout = 10 * time.Second
	auditBuffer     = 1024
)

// main wires dependencies and runs the HTTP server and background workers
// until SIGINT or SIGTERM. Business logic lives in the internal service
// packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

type app struct {
	router  http.Handler
	cleanup *cleanup.CleanupService
	trust   *trust.Service
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.cleanup.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// A failed warm-up is not fatal; verification reports trust_unavailable
		// until a refresh succeeds.
		if _, err := a.trust.Fetch(gctx, false); err != nil {
			log.WarnContext(gctx, "initial trust list load failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	reg := metrics.NewRegistry()
	tr := tracer.NewOTel()
	auditor := audit.NewLogger(log, audit.NewMemorySink(auditBuffer))

	loader := keys.NewLoader(cfg.Keys.Dir, log)
	readerKey, err := loader.Load(ctx, keys.PurposeReader, cfg.Keys.ReaderKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("load reader key: %w", err)
	}
	issuerKey, err := loader.Load(ctx, keys.PurposeIssuer, cfg.Keys.IssuerKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("load issuer key: %w", err)
	}

	healthHandler := health.New(cfg.Env)
	handlers := []httptransport.Registrar{healthHandler}

	// Trust
	if cfg.Trust.Endpoint == "" {
		log.Warn("no trust endpoint configured; issuer pinning reports trust_unavailable until one is set")
	}
	trustSvc, err := buildTrust(cfg, log, reg, tr, auditor)
	if err != nil {
		return nil, err
	}
	healthHandler.RegisterCheck("trust", func(context.Context) error {
		loaded, stale := trustSvc.Status(time.Now())
		switch {
		case !loaded:
			return errors.New("trust list not loaded")
		case stale:
			return fmt.Errorf("trust list past ttl: %w", health.ErrDegraded)
		}
		return nil
	})
	handlers = append(handlers, trusthandler.New(trustSvc, log))

	// Presentation
	mode, err := presentationmodels.ParseMode(cfg.Verification.Mode)
	if err != nil {
		return nil, err
	}
	presMetrics := presentationmetrics.New(reg)
	remote := verifier.New(cfg.Verification.Endpoint,
		verifier.WithTimeout(cfg.Verification.Timeout),
		verifier.WithLogger(log),
		verifier.WithMetrics(presMetrics),
		verifier.WithTracer(tr),
	)
	verificationSessions := presentationstore.NewInMemoryStore()
	presSvc, err := presentation.New(
		envelope.NewOpener(readerKey.Private, ""),
		remote,
		verificationSessions,
		presentation.Config{Mode: mode, Origin: cfg.Origin, SessionTTL: cfg.Issuance.SessionTTL},
		presentation.WithTrustStore(trustSvc),
		presentation.WithLogger(log),
		presentation.WithMetrics(presMetrics),
		presentation.WithTracer(tr),
		presentation.WithAuditLogger(auditor),
	)
	if err != nil {
		return nil, err
	}
	if mode == presentationmodels.ModeAllowMock {
		log.Warn("verification mode allow_mock: unreachable verifier yields mock results")
	}
	handlers = append(handlers, presentationhandler.New(presSvc, log))

	// Derived credentials
	claimsMode, err := credential.ParseClaimsMode(cfg.Issuance.ClaimsMode)
	if err != nil {
		return nil, err
	}
	signer, err := sdjwt.NewIssuer(issuerKey.Private, cfg.IssuerURL,
		sdjwt.WithTTL(cfg.Issuance.CredentialTTL),
		sdjwt.WithKeyID(issuerKey.KeyID),
	)
	if err != nil {
		return nil, err
	}
	credSvc, err := credential.New(signer, sdjwt.NewVerifier(signer.PublicKey()),
		credential.WithClaimsMode(claimsMode),
		credential.WithLogger(log),
		credential.WithMetrics(credentialmetrics.New(reg)),
		credential.WithTracer(tr),
		credential.WithAuditLogger(auditor),
	)
	if err != nil {
		return nil, err
	}
	handlers = append(handlers, credentialhandler.New(credSvc, log))

	// Issuance
	issMetrics := issuancemetrics.New(reg)
	issuanceSessions := issuancestore.NewInMemoryStore()
	issSvc, err := issuance.New(issuanceSessions, credSvc,
		issuance.WithVerificationRegistry(issuanceadapters.NewVerificationAdapter(presSvc)),
		issuance.WithSessionTTL(cfg.Issuance.SessionTTL),
		issuance.WithProofAudience(cfg.IssuerURL),
		issuance.WithLogger(log),
		issuance.WithMetrics(issMetrics),
		issuance.WithTracer(tr),
		issuance.WithAuditLogger(auditor),
	)
	if err != nil {
		return nil, err
	}
	handlers = append(handlers, issuancehandler.New(issSvc, log))

	targets := []cleanup.Target{
		{Kind: "verification", Store: verificationSessions, Gauge: presMetrics.SetActiveSessions},
		{Kind: "issuance", Store: issuanceSessions, Gauge: issMetrics.SetActiveSessions},
	}

	routerCfg := httptransport.RouterConfig{
		JWKS:           keys.JWKS(issuerKey, readerKey),
		Registry:       reg,
		RequestMetrics: request.NewMetrics(reg),
	}
	if cfg.RateLimit.Disabled {
		log.Warn("rate limiting disabled")
	} else {
		buckets := bucket.NewInMemoryBucketStore()
		limiter := ratelimit.New(buckets, map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
			ratelimitmodels.ClassVerify:   {RequestsPerWindow: cfg.RateLimit.Verify, Window: cfg.RateLimit.Window},
			ratelimitmodels.ClassIssuance: {RequestsPerWindow: cfg.RateLimit.Issuance, Window: cfg.RateLimit.Window},
		}, log, ratelimit.NewMetrics(reg))
		routerCfg.RateLimit = limiter.RateLimit
		targets = append(targets, cleanup.Target{Kind: "ratelimit", Store: buckets})
	}

	sweeper, err := cleanup.New(targets,
		cleanup.WithCleanupInterval(cfg.Issuance.CleanupInterval),
		cleanup.WithCleanupLogger(log),
		cleanup.WithCleanupMetrics(issMetrics),
	)
	if err != nil {
		return nil, err
	}

	router := httptransport.NewRouter(log, routerCfg, handlers...)

	return &app{router: router, cleanup: sweeper, trust: trustSvc}, nil
}

func buildTrust(cfg config.Config, log *slog.Logger, reg prometheus.Registerer, tr tracer.Tracer, auditor *audit.Logger) (*trust.Service, error) {
	cache := truststore.NewFileCache(cfg.Trust.CacheDir)
	opts := []trust.Option{
		trust.WithCache(cache),
		trust.WithTTL(cfg.Trust.TTL),
		trust.WithRequireRoots(cfg.Trust.RequireRootsEnabled()),
		trust.WithLogger(log),
		trust.WithMetrics(trustmetrics.New(reg)),
		trust.WithTracer(tr),
		trust.WithAuditLogger(auditor),
	}
	if cfg.Trust.RootEndpoint != "" {
		opts = append(opts, trust.WithRootSource(
			source.NewRootFetcher(cfg.Trust.RootEndpoint, cache, source.WithTimeout(cfg.Trust.FetchTimeout)),
		))
	}
	return trust.New(
		source.NewHTTPSource(cfg.Trust.Endpoint, source.WithTimeout(cfg.Trust.FetchTimeout)),
		cfg.Trust.Jurisdictions,
		opts...,
	)
}
