package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"milgramgo/internal/api"
	"milgramgo/pkg/audio"
	"milgramgo/pkg/config"
	"milgramgo/pkg/db"
	"milgramgo/pkg/logging"
	"milgramgo/pkg/model"
	"milgramgo/pkg/player"
	"milgramgo/pkg/probe"
	"milgramgo/pkg/request"
	"milgramgo/pkg/scene"
	"milgramgo/pkg/scene/genai"
	"milgramgo/pkg/scene/sprites"
	"milgramgo/pkg/session"
	"milgramgo/pkg/source"
	"milgramgo/pkg/store"
	"milgramgo/pkg/tracker"
	"milgramgo/pkg/tts"
	"milgramgo/pkg/tts/backend"
	"milgramgo/pkg/tts/mock"
	"milgramgo/pkg/tts/openaitts"
	"milgramgo/pkg/tts/sapi"
	"milgramgo/pkg/turnqueue"
	"milgramgo/pkg/version"
)

var (
	configPath = flag.String("config", "configs/milgram.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	trace      = flag.Bool("trace", false, "Enable verbose playback tracing")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// API keys may live in a .env next to the binary
	_ = godotenv.Load()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()
	logging.EnableTrace = *trace

	tts.SetLogPath(appCfg.Log.TTS.Path)

	slog.Info("MilgramGo Started", "version", version.Version)

	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	tr := tracker.New()
	reqClient := request.New(st, tr, time.Duration(appCfg.Request.Timeout))
	reqClient.ConfigureBackoff(time.Duration(appCfg.Request.Backoff.BaseDelay), time.Duration(appCfg.Request.Backoff.MaxDelay))

	ttsProv, ttsFallback, err := initTTS(appCfg, tr)
	if err != nil {
		return err
	}

	renderer := initRenderer(appCfg, tr)

	audioMgr := audio.New(appCfg.Player.Volume, appCfg.Player.Rate)
	defer audioMgr.Shutdown()
	restorePlayerState(ctx, st, audioMgr)

	// The hub closes over player and queue, which in turn notify the hub.
	// Late binding breaks the construction cycle.
	var hub *api.Hub
	onUpdate := func() {
		if hub != nil {
			hub.Broadcast()
		}
	}

	queue := turnqueue.New(ctx,
		turnqueue.NewSpeechProducer(ttsProv, ttsFallback, appCfg.TTS.Voices),
		turnqueue.NewSceneProducer(renderer),
		appCfg.Artifacts.Dir,
		nil,
	)
	plr := player.New(queue, audioMgr, time.Duration(appCfg.Player.ShockDwell), onUpdate)
	queue.SetNotify(func() {
		plr.Kick()
		onUpdate()
	})
	plr.Start()
	defer plr.Stop()

	src := source.New(appCfg.Source.BaseURL, reqClient)
	sessionMgr := session.New(queue, plr, src, st, onUpdate)
	defer sessionMgr.Stop()

	hub = api.NewHub(func() any {
		return statePayload(plr, queue, sessionMgr)
	})

	if err := runStartupProbes(ctx, appCfg, src); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, appCfg, plr, queue, sessionMgr, st, tr, hub)
}

func initTTS(cfg *config.Config, tr *tracker.Tracker) (primary, fallback tts.Provider, err error) {
	primary, err = buildTTSEngine(cfg.TTS.Engine, cfg, tr)
	if err != nil {
		return nil, nil, err
	}
	if name := cfg.TTS.FallbackEngine; name != "" && name != cfg.TTS.Engine {
		fallback, err = buildTTSEngine(name, cfg, tr)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback engine: %w", err)
		}
	}
	return primary, fallback, nil
}

func buildTTSEngine(name string, cfg *config.Config, tr *tracker.Tracker) (tts.Provider, error) {
	switch name {
	case "backend":
		url := cfg.TTS.Backend.URL
		if url == "" {
			url = cfg.Source.BaseURL
		}
		slog.Info("TTS: backend engine", "url", url)
		return backend.NewProvider(url, tr), nil
	case "openai":
		prov, err := openaitts.NewProvider(cfg.TTS.OpenAI, tr)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI TTS: %w", err)
		}
		slog.Info("TTS: OpenAI engine", "model", cfg.TTS.OpenAI.Model)
		return prov, nil
	case "windows-sapi":
		slog.Info("TTS: Windows SAPI engine")
		return sapi.NewProvider(), nil
	case "mock":
		slog.Info("TTS: mock engine, producing silence")
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown tts engine: %s", name)
	}
}

func initRenderer(cfg *config.Config, tr *tracker.Tracker) scene.Renderer {
	switch cfg.Scene.Renderer {
	case "sprites":
		comp, err := sprites.NewCompositor(cfg.Scene.AssetsDir)
		if err != nil {
			slog.Warn("Sprite assets unavailable, scenes degrade to fallback", "dir", cfg.Scene.AssetsDir, "error", err)
			return scene.Mock{}
		}
		slog.Info("Scene: sprite compositor", "assets", cfg.Scene.AssetsDir)
		return comp
	case "genai":
		r, err := genai.NewRenderer(cfg.Scene.GenAI, tr)
		if err != nil {
			slog.Warn("GenAI renderer unavailable, scenes degrade to fallback", "error", err)
			return scene.Mock{}
		}
		slog.Info("Scene: generative renderer", "model", cfg.Scene.GenAI.Model)
		return r
	default:
		slog.Info("Scene: mock renderer")
		return scene.Mock{}
	}
}

func restorePlayerState(ctx context.Context, st store.StateStore, audioMgr audio.Service) {
	if volStr, ok := st.GetState(ctx, "volume"); ok && volStr != "" {
		var val float64
		if _, err := fmt.Sscanf(volStr, "%f", &val); err == nil {
			audioMgr.SetVolume(val)
		}
	}
	if rateStr, ok := st.GetState(ctx, "rate"); ok && rateStr != "" {
		var val float64
		if _, err := fmt.Sscanf(rateStr, "%f", &val); err == nil {
			audioMgr.SetRate(val)
		}
	}
}

type wsState struct {
	Player    player.Status        `json:"player"`
	Turns     []model.TurnSnapshot `json:"turns"`
	Streaming bool                 `json:"streaming"`
}

func statePayload(plr *player.Player, queue *turnqueue.Queue, mgr *session.Manager) wsState {
	status := plr.Status()
	return wsState{
		Player:    status,
		Turns:     queue.Snapshot(status.Index),
		Streaming: mgr.Streaming(),
	}
}

func runStartupProbes(ctx context.Context, cfg *config.Config, src *source.Client) error {
	probes := []probe.Probe{
		{
			Name: "Artifacts Dir",
			Check: func(context.Context) error {
				return os.MkdirAll(cfg.Artifacts.Dir, 0o755)
			},
			Critical: true,
		},
		{
			// The backend being down only blocks live sessions, cached
			// conversations still replay.
			Name: "Experiment Backend",
			Check: func(c context.Context) error {
				_, err := src.LoadAllConversations(c)
				return err
			},
			Critical: false,
		},
	}

	return probe.AnalyzeResults(probe.Run(ctx, probes))
}

func runServer(ctx context.Context, cfg *config.Config, plr *player.Player, queue *turnqueue.Queue, sessionMgr *session.Manager, st store.StateStore, tr *tracker.Tracker, hub *api.Hub) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewPlayerHandler(plr, st),
		api.NewQueueHandler(queue, plr),
		api.NewSessionHandler(sessionMgr, ctx),
		api.NewImageHandler(plr),
		api.NewStatsHandler(tr, queue, plr, sessionMgr),
		hub,
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
