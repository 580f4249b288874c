package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/weekend-code-project/weekendstack/internal/apihandler"
	"github.com/weekend-code-project/weekendstack/internal/config"
	"github.com/weekend-code-project/weekendstack/internal/metrics"
	"github.com/weekend-code-project/weekendstack/internal/registry"
	"github.com/weekend-code-project/weekendstack/internal/tunnel"
)

const version = "1.1.0"

var (
	configFile  = kingpin.Flag("config", "配置文件路径").Short('c').Default("").String()
	checkConfig = kingpin.Flag("check-config", "加载配置和服务表后退出").Bool()
)

func main() {
	kingpin.Version(version)
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := *configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	logger.Info("Link Router Starting...",
		zap.String("version", version),
		zap.String("config", configPath),
		zap.String("lab_domain", cfg.Router.LabDomain),
		zap.String("base_domain", cfg.Router.BaseDomain),
		zap.String("force_mode", cfg.Router.ForceMode),
		zap.Strings("lab_only_services", cfg.Router.LabOnlyServices),
		zap.Int("port", cfg.Server.Port),
		zap.Int("management_port", cfg.Management.Port),
	)

	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("加载服务表失败", zap.Error(err))
	}
	logger.Info("服务表加载完成", zap.Int("services", reg.Len()))

	if *checkConfig {
		logger.Info("配置检查通过")
		return
	}

	var m *metrics.Metrics
	var proberOpts []tunnel.Option
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.SetRegistrySize(reg.Len())
		proberOpts = append(proberOpts, tunnel.WithObserver(m.ObserveProbe))
	}

	prober := tunnel.NewProberFromConfig(cfg, logger, proberOpts...)
	if prober.Host() == "" {
		logger.Warn("未配置公网域名，外网跳转将返回500")
	} else {
		logger.Info("隧道探测已配置",
			zap.String("host", prober.Host()),
			zap.String("method", cfg.Tunnel.Method),
			zap.Duration("interval", cfg.Tunnel.Interval),
			zap.Duration("timeout", cfg.Tunnel.Timeout))
	}

	handler := apihandler.NewAPIHandler(cfg, logger, reg, prober, m)
	if err := handler.StartRedirectAPI(); err != nil {
		logger.Fatal("启动跳转服务失败", zap.Error(err))
	}
	if err := handler.StartManagementAPI(); err != nil {
		logger.Fatal("启动管理API失败", zap.Error(err))
	}

	// 等待信号以优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("接收到关闭信号，正在优雅关闭...", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭服务失败", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// loadRegistry 按配置合并内联、文件和etcd来源
func loadRegistry(cfg *config.Config, logger config.Logger) (*registry.Registry, error) {
	var etcdSource registry.Source
	if cfg.Registry.Etcd.Enabled {
		client, err := registry.NewEtcdClient(cfg)
		if err != nil {
			return nil, err
		}
		// 服务表启动后不再变化，读取完即可关闭连接
		defer client.Close()
		etcdSource = registry.NewEtcdSource(client, cfg.Registry.Etcd.Prefix)
		logger.Info("从etcd加载服务表",
			zap.Strings("endpoints", cfg.Registry.Etcd.Endpoints),
			zap.String("prefix", cfg.Registry.Etcd.Prefix))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return registry.Load(ctx, logger, registry.SourcesFromConfig(cfg, etcdSource)...)
}
