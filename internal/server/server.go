// Package server wires the HTTP API, the DefraDB container, and the
// job processor into one lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/internal/config"
	"github.com/cuentosapp/cuentos-server/internal/defra"
	"github.com/cuentosapp/cuentos-server/internal/home"
	"github.com/cuentosapp/cuentos-server/internal/processor"
	"github.com/cuentosapp/cuentos-server/internal/schema"
	"github.com/cuentosapp/cuentos-server/internal/server/endpoints"
	"github.com/cuentosapp/cuentos-server/internal/store"
	"github.com/cuentosapp/cuentos-server/internal/svcctx"
)

// Config configures the server.
type Config struct {
	Host          string
	Port          int
	Home          *home.Dir
	ConfigManager *config.Manager
	// Defra overrides container settings from the config file. Tests
	// use it to isolate containers and ports.
	Defra  defra.DockerConfig
	Logger *slog.Logger
}

// Server owns the HTTP listener, the DefraDB container, and the job
// processor. Start blocks until the context is cancelled or the
// listener fails.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	sink         *defra.Sink
	proc         *processor.Processor
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger
	registry     *api.Registry

	mu       sync.Mutex
	services *svcctx.Services
	running  bool
}

// New creates a server. The DefraDB container and backing services are
// started in Start; until then requests behind requireInit get a 503.
func New(cfg Config) (*Server, error) {
	if cfg.Home == nil {
		return nil, fmt.Errorf("home directory is required")
	}
	if cfg.ConfigManager == nil {
		return nil, fmt.Errorf("config manager is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.ConfigManager.Get()
	dockerCfg := defra.DockerConfig{
		ContainerName: appCfg.Defra.ContainerName,
		Image:         appCfg.Defra.Image,
		DataPath:      cfg.Home.DataPath(),
		HostPort:      appCfg.Defra.Port,
	}
	if cfg.Defra.ContainerName != "" {
		dockerCfg.ContainerName = cfg.Defra.ContainerName
	}
	if cfg.Defra.Image != "" {
		dockerCfg.Image = cfg.Defra.Image
	}
	if cfg.Defra.DataPath != "" {
		dockerCfg.DataPath = cfg.Defra.DataPath
	}
	if cfg.Defra.HostPort != "" {
		dockerCfg.HostPort = cfg.Defra.HostPort
	}
	if cfg.Defra.Labels != nil {
		dockerCfg.Labels = cfg.Defra.Labels
	}
	defraManager, err := defra.NewDockerManager(dockerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create defra manager: %w", err)
	}

	s := &Server{
		defraManager: defraManager,
		configMgr:    cfg.ConfigManager,
		home:         cfg.Home,
		logger:       logger,
		registry:     api.NewRegistry(),
	}

	for _, ep := range endpoints.All(endpoints.Config{DefraManager: defraManager}) {
		s.registry.Register(ep)
	}

	mux := http.NewServeMux()
	s.registry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start brings up DefraDB, initializes the schema and services, sweeps
// the job queue, and serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		return fmt.Errorf("failed to prepare home directory: %w", err)
	}

	s.logger.Info("starting DefraDB container")
	if err := s.defraManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}
	if err := s.defraManager.WaitReady(ctx, 60*time.Second); err != nil {
		return fmt.Errorf("DefraDB did not become ready: %w", err)
	}

	client := defra.NewClient(s.defraManager.URL())
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	if err := schema.Initialize(ctx, client, s.logger); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	sink := defra.NewSink(defra.SinkConfig{Client: client, Logger: s.logger})
	sink.Start(ctx)

	st, err := store.NewDefraStore(client, sink)
	if err != nil {
		sink.Stop()
		return fmt.Errorf("failed to create store: %w", err)
	}

	configStore := config.NewStore(client)
	if err := config.SeedDefaults(ctx, configStore, s.logger); err != nil {
		s.logger.Warn("failed to seed config defaults", "error", err)
	}

	// DB-stored settings overlay the file config.
	appCfg := s.configMgr.Get()
	if err := config.StoreToConfig(ctx, configStore, appCfg); err != nil {
		s.logger.Warn("failed to load stored config", "error", err)
	}

	proc, err := s.buildProcessor(appCfg, st)
	if err != nil {
		sink.Stop()
		return err
	}

	s.mu.Lock()
	s.defraClient = client
	s.sink = sink
	s.proc = proc
	s.services = &svcctx.Services{
		DefraClient: client,
		DefraSink:   sink,
		Store:       st,
		Processor:   proc,
		ConfigStore: configStore,
		Logger:      s.logger,
		Home:        s.home,
	}
	s.mu.Unlock()

	// Recover jobs left pending by a previous shutdown.
	if swept, err := proc.ProcessQueue(ctx); err != nil {
		s.logger.Warn("startup queue sweep failed", "error", err)
	} else if swept > 0 {
		s.logger.Info("resumed pending jobs", "dispatched", swept)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		return s.shutdown()
	case err := <-errCh:
		s.shutdown()
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// buildProcessor assembles the job processor from the effective config.
// Narration providers are optional: without API keys the server still
// serves parsing and chapter endpoints.
func (s *Server) buildProcessor(appCfg *config.Config, st store.Store) (*processor.Processor, error) {
	pcfg := processor.Config{
		Store:    st,
		Logger:   s.logger,
		Workers:  appCfg.Defaults.MaxWorkers,
		AudioDir: s.home.AudioDir(),
	}

	tts, err := appCfg.BuildTTSProvider()
	if err != nil {
		s.logger.Warn("narration synthesis unavailable", "error", err)
	} else {
		pcfg.TTS = tts
		if ttsCfg, ok := appCfg.GetTTSProvider(appCfg.Defaults.TTSProvider); ok {
			pcfg.TTSVoice = ttsCfg.Voice
			pcfg.TTSFormat = ttsCfg.Format
		}
	}
	asr, err := appCfg.BuildASRProvider()
	if err != nil {
		s.logger.Warn("narration recognition unavailable", "error", err)
	} else {
		pcfg.ASR = asr
	}

	proc, err := processor.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}
	return proc, nil
}

// shutdown stops the HTTP listener, waits for in-flight jobs, flushes
// the write sink, and stops the DefraDB container.
func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP shutdown failed", "error", err)
	}

	if s.proc != nil {
		s.proc.Wait()
	}
	if s.sink != nil {
		s.sink.Stop()
	}

	if err := s.defraManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("failed to stop DefraDB", "error", err)
	}
	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("failed to close docker client", "error", err)
	}

	return nil
}

// withServices attaches the service bundle to every request context.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		services := s.services
		s.mu.Unlock()
		if services != nil {
			r = r.WithContext(svcctx.WithServices(r.Context(), services))
		}
		next.ServeHTTP(w, r)
	})
}

// requireInit rejects requests until Start has finished wiring services.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ready := s.services != nil
		s.mu.Unlock()
		if !ready {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, `{"error":"server not fully initialized","code":"NOT_READY"}`)
			return
		}
		next(w, r)
	}
}
