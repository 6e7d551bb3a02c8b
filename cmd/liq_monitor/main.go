package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/alert"
	"github.com/utrading/utrading-liq-monitor/internal/auditlog"
	"github.com/utrading/utrading-liq-monitor/internal/exchange"
	"github.com/utrading/utrading-liq-monitor/internal/manager"
	"github.com/utrading/utrading-liq-monitor/internal/models"
	"github.com/utrading/utrading-liq-monitor/internal/monitor"
	"github.com/utrading/utrading-liq-monitor/internal/nats"
	"github.com/utrading/utrading-liq-monitor/internal/notify"
	"github.com/utrading/utrading-liq-monitor/internal/snapshot"
	"github.com/utrading/utrading-liq-monitor/internal/store"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
	"github.com/utrading/utrading-liq-monitor/pkg/netx"
	"github.com/utrading/utrading-liq-monitor/pkg/sigproc"
)

const keyStatus = "status"

func main() {
	var (
		configFile  string
		once        bool
		setLeverage string
	)
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.BoolVar(&once, "once", false, "run a single check cycle and exit")
	flag.StringVar(&setLeverage, "set-leverage", "", "change leverage and exit, e.g. BTCUSDT=10")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env failed:", err)
	}

	// 加载配置
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config failed:", err)
		os.Exit(2)
	}

	// 初始化日志
	if err = initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	// 初始化指标
	monitor.InitMetrics()

	httpClient, err := netx.NewHTTPClient(cfg.Binance.Timeout, cfg.Binance.ProxyAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("init http client failed")
	}
	client := exchange.New(cfg.Binance, httpClient)

	if setLeverage != "" {
		os.Exit(runSetLeverage(client, setLeverage))
	}

	os.Exit(run(cfg, client, once))
}

func run(cfg *config.Config, client *exchange.Client, once bool) int {
	logger.Info().
		Bool("once", once).
		Bool("dry_run", cfg.Alert.DryRun).
		Float64("threshold", cfg.Alert.DangerThresholdPercent).
		Str("storage", cfg.Storage.Driver).
		Msg("liq_monitor starting...")

	// 状态存储，不可用时降级，不影响本轮检查
	blob, err := store.OpenWithFallback(cfg.Storage)
	if err != nil {
		monitor.IncPersistenceError("open")
	}
	defer blob.Close()

	audit, err := auditlog.Open(cfg.Audit)
	if err != nil {
		logger.Warn().Err(err).Msg("open audit log failed, continuing without it")
		audit = nil
	} else {
		defer audit.Close()
	}

	tgClient, err := netx.NewHTTPClient(cfg.Telegram.Timeout, cfg.Binance.ProxyAddr)
	if err != nil {
		logger.Error().Err(err).Msg("init telegram http client failed")
		return 1
	}

	deps := manager.Deps{
		Exchange: client,
		Gate: alert.NewGate(alert.Policy{
			Cooldown:          cfg.Alert.Cooldown,
			SignificantChange: cfg.Alert.SignificanceThreshold,
			MaxPerHour:        cfg.Alert.MaxPerHour,
		}, blob),
		Tracker: snapshot.NewTracker(blob),
		Sender:  notify.New(cfg.Telegram, cfg.Alert.DryRun, tgClient, audit),
		Audit:   audit,
		Status:  store.NewJSON(blob, keyStatus, func() models.StatusReport { return models.StatusReport{} }),
	}

	// NATS 可选
	var publisher *nats.Publisher
	if cfg.NATS.Endpoint != "" {
		publisher, err = nats.NewPublisher(cfg.NATS.Endpoint, cfg.NATS.Subject)
		if err != nil {
			logger.Warn().Err(err).Msg("init nats publisher failed, events will not be published")
		} else {
			defer publisher.Close()
			deps.Publisher = publisher
		}
	}

	loop := manager.NewMonitorLoop(deps, manager.OptionsFrom(cfg))

	if once {
		res, err := loop.RunOnce(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("check cycle failed")
			return 1
		}
		logger.Info().
			Int("positions", res.Positions).
			Int("alerts_sent", res.AlertsSent).
			Bool("degraded", res.Degraded).
			Msg("check cycle finished")
		return 0
	}

	ctx, cancel := sigproc.NotifyContext(context.Background())
	defer cancel()

	// 初始化健康检查服务器
	if cfg.Monitor.HealthServerAddr != "" {
		var ref monitor.PublisherRef
		if publisher != nil {
			ref = publisher
		}
		healthServer := monitor.NewHealthServer(cfg.Monitor.HealthServerAddr, loop, ref)
		healthServer.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			healthServer.Stop(shutdownCtx)
		}()
	}

	if err = loop.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("monitor loop exited")
		return 1
	}

	logger.Info().Msg("liq_monitor stopped")
	return 0
}

func runSetLeverage(client *exchange.Client, arg string) int {
	symbol, leverage, err := parseLeverageArg(arg)
	if err != nil {
		logger.Error().Err(err).Msg("invalid -set-leverage")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := client.SetLeverage(ctx, symbol, leverage)
	if err != nil {
		if errors.Is(err, exchange.ErrAuth) {
			logger.Error().Err(err).Msg("set leverage rejected, check api credentials")
		} else {
			logger.Error().Err(err).Msg("set leverage failed")
		}
		return 1
	}

	logger.Info().
		Str("symbol", res.Symbol).
		Int("leverage", res.Leverage).
		Float64("max_notional", res.MaxNotionalValue).
		Msg("leverage updated")
	fmt.Printf("%s leverage set to %dx (max notional %s)\n", res.Symbol, res.Leverage,
		strconv.FormatFloat(res.MaxNotionalValue, 'f', -1, 64))
	return 0
}

// parseLeverageArg 解析 SYMBOL=N
func parseLeverageArg(arg string) (string, int, error) {
	symbol, raw, ok := strings.Cut(arg, "=")
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !ok || symbol == "" {
		return "", 0, fmt.Errorf("expected SYMBOL=N, got %q", arg)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", 0, fmt.Errorf("leverage %q: %w", raw, err)
	}
	return symbol, n, nil
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetDir(cfg.Logger.Dir).
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
