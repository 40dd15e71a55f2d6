package webapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"midoriadblock/adblock"
	"midoriadblock/config"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout is the time given to in-flight requests on Stop.
const shutdownTimeout = 5 * time.Second

// APIResponse 统一的 API 响应格式
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Config is the configuration structure for [NewServer].
type Config struct {
	// Logger is used for request and lifecycle messages.  It must not be
	// nil.
	Logger *slog.Logger

	// Config is the loaded configuration.  Changes made through the API are
	// written back to it and saved to ConfigPath.  It must not be nil.
	Config *config.Config

	// Manager is the adblock manager.  It must not be nil.
	Manager *adblock.Manager

	// Gatherer serves /metrics.  If nil, the endpoint is not registered.
	Gatherer prometheus.Gatherer

	// ConfigPath is the configuration file.  If empty, changes are not
	// persisted.
	ConfigPath string
}

// Server Web API 服务器
type Server struct {
	logger     *slog.Logger
	cfg        *config.Config
	mgr        *adblock.Manager
	gatherer   prometheus.Gatherer
	configPath string
	listener   *http.Server

	// cfgMutex 保护 cfg 以及配置文件的写入
	cfgMutex sync.Mutex

	// adblockMutex 保护 isAdblockBusy
	adblockMutex  sync.Mutex
	isAdblockBusy bool

	// updates 跟踪后台的规则更新
	updates sync.WaitGroup
}

// NewServer 创建新的 Web API 服务器
func NewServer(conf *Config) (s *Server) {
	return &Server{
		logger:     conf.Logger,
		cfg:        conf.Config,
		mgr:        conf.Manager,
		gatherer:   conf.Gatherer,
		configPath: conf.ConfigPath,
	}
}

// Handler returns the handler with all routes.
func (s *Server) Handler() (h http.Handler) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	// AdBlock API routes
	mux.HandleFunc("/api/adblock/status", s.handleAdBlockStatus)
	mux.HandleFunc("/api/adblock/toggle", s.handleAdBlockToggle)
	mux.HandleFunc("/api/adblock/sources", s.handleAdBlockSources) // GET list, POST add, PUT enable, DELETE remove
	mux.HandleFunc("/api/adblock/update", s.handleAdBlockUpdate)
	mux.HandleFunc("/api/adblock/test", s.handleAdBlockTest)
	mux.HandleFunc("/api/adblock/request", s.handleAdBlockRequest)
	mux.HandleFunc("/api/adblock/script", s.handleAdBlockScript)
	mux.HandleFunc("/api/adblock/hider", s.handleAdBlockHider)
	mux.HandleFunc("/api/adblock/stylesheet", s.handleAdBlockStylesheet)
	mux.HandleFunc("/api/adblock/custom", s.handleCustomRules)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s.corsMiddleware(mux)
}

// Start 启动 Web API 服务。 It blocks until the server is stopped.
func (s *Server) Start() (err error) {
	if !s.cfg.WebUI.Enabled {
		s.logger.Info("web api is disabled")

		return nil
	}

	s.listener = &http.Server{
		Addr:              s.cfg.WebUI.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("web api started", "addr", s.cfg.WebUI.ListenAddr)

	err = s.listener.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Stop shuts the server down and waits for the running rule updates.
func (s *Server) Stop(ctx context.Context) (err error) {
	defer s.updates.Wait()

	if s.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down web api")

	return s.listener.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
