package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"midoriadblock/adblock"
	"midoriadblock/config"
	"midoriadblock/logger"
	"midoriadblock/webapi"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// metricsNamespace is the Prometheus namespace of all metrics.
const metricsNamespace = "midori"

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "", "配置文件路径（默认取 CONFIG_PATH 或 config.yaml）")
	checkURL := flag.String("check", "", "检查一个请求 URL 是否会被拦截，然后退出")
	pageURL := flag.String("page", "", "与 -check 一起使用：发起请求的页面 URL")
	help := flag.Bool("h", false, "显示帮助信息")

	flag.Parse()

	// 显示帮助信息
	if *help {
		printHelp()
		os.Exit(0)
	}

	envs, err := parseEnvironment()
	if err != nil {
		logger.Fatalf("Failed to read environment: %v", err)
	}

	effectiveConfigPath := envs.ConfPath
	if *configPath != "" {
		effectiveConfigPath = *configPath
	}

	// 加载配置（先加载配置以获取日志设置）
	cfg, err := config.LoadConfig(effectiveConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	envs.apply(cfg)

	// 立即设置日志级别，确保后续所有日志都遵循配置
	logger.SetLevel(cfg.System.LogLevel)
	if err = logger.SetFormat(cfg.System.LogFormat); err != nil {
		logger.Warnf("Ignoring log format: %v", err)
	}

	logger.Infof("Config loaded from %s", effectiveConfigPath)

	if *checkURL != "" {
		os.Exit(runCheck(cfg, *checkURL, *pageURL))
	}

	runService(cfg, effectiveConfigPath)
}

// runCheck loads the rules once and prints the decision for requestURL.  It
// returns the exit code.
func runCheck(cfg *config.Config, requestURL, pageURL string) (code int) {
	ctx := context.Background()

	// 单次检查不需要定时更新
	ab := cfg.AdBlock
	ab.UpdateIntervalHours = 0
	ab.Enable = true

	mgr, err := adblock.NewManager(&adblock.ManagerConfig{
		Logger:  logger.For("manager"),
		AdBlock: &ab,
	})
	if err != nil {
		logger.Errorf("Failed to create adblock manager: %v", err)

		return 1
	}
	defer mgr.Close()

	if _, err = mgr.UpdateRules(ctx, false); err != nil {
		logger.Errorf("Failed to load rules: %v", err)

		return 1
	}

	d := mgr.Test(requestURL, pageURL)
	if d.Blocked {
		fmt.Printf("blocked\t%s\t%s\n", d.Path, d.Pattern)
	} else {
		fmt.Println("allowed")
	}

	return 0
}

// runService starts the manager and the web API and runs until SIGINT or
// SIGTERM.
func runService(cfg *config.Config, configPath string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := adblock.NewPrometheusMetrics(metricsNamespace, reg)
	if err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}

	mgr, err := adblock.NewManager(&adblock.ManagerConfig{
		Logger:  logger.For("manager"),
		Metrics: metrics,
		Styler:  &logStyler{logger: logger.For("styler")},
		AdBlock: &cfg.AdBlock,
	})
	if err != nil {
		logger.Fatalf("Failed to create adblock manager: %v", err)
	}

	if err = mgr.Start(ctx); err != nil {
		logger.Fatalf("Failed to start adblock manager: %v", err)
	}

	webServer := webapi.NewServer(&webapi.Config{
		Logger:     logger.For("webapi"),
		Config:     cfg,
		Manager:    mgr,
		Gatherer:   reg,
		ConfigPath: configPath,
	})

	webServerDone := serveWebAPI(ctx, webServer)

	select {
	case <-ctx.Done():
		logger.Infof("Shutting down...")
	case err = <-webServerDone:
		logger.Errorf("Web API server failed: %v", err)
	}

	// 先关闭 Web 服务器，再停止后台下载
	if err = webServer.Stop(context.Background()); err != nil {
		logger.Errorf("Failed to stop Web API server: %v", err)
	}

	mgr.Close()

	logger.Infof("Stopped gracefully")
}

// serveWebAPI starts srv in the background.  The returned channel only
// receives an error when the server fails, so a disabled server keeps the
// service running.
func serveWebAPI(ctx context.Context, srv *webapi.Server) (errCh <-chan error) {
	ch := make(chan error, 1)
	go func() {
		defer slogutil.RecoverAndLog(ctx, logger.Base())

		if err := srv.Start(); err != nil {
			ch <- err
		}
	}()

	return ch
}

// logStyler is the [adblock.Styler] of the standalone service.  There is no
// page to style, so it only reports the stylesheet.
type logStyler struct {
	logger *slog.Logger
}

// type check
var _ adblock.Styler = (*logStyler)(nil)

// RegisterStylesheet implements the [adblock.Styler] interface for
// *logStyler.
func (s *logStyler) RegisterStylesheet(id, css string) {
	s.logger.Debug("stylesheet registered", "id", id, "bytes", len(css))
}

// UnregisterStylesheet implements the [adblock.Styler] interface for
// *logStyler.
func (s *logStyler) UnregisterStylesheet(id string) {
	s.logger.Debug("stylesheet unregistered", "id", id)
}

func printHelp() {
	fmt.Print(`midoriadblock - 浏览器广告过滤引擎服务

使用方法：
  midoriadblock [选项]

选项：
  -c <路径>        配置文件路径（默认：$CONFIG_PATH 或 config.yaml）
  -check <URL>     检查请求 URL 是否会被拦截，输出 blocked 或 allowed 后退出
  -page <URL>      与 -check 一起使用：发起请求的页面 URL
  -h               显示此帮助信息

环境变量：
  CONFIG_PATH      配置文件路径
  LOG_LEVEL        日志级别（debug/info/warn/error）
  LOG_FORMAT       日志格式（text/json/jsonhybrid/default）
  LISTEN_ADDR      Web API 监听地址

示例：
  # 启动服务
  midoriadblock -c /etc/midoriadblock/config.yaml

  # 检查一个请求
  midoriadblock -check http://ads.example.com/banner.gif -page https://news.example.org/
`)
}
