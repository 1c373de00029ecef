// Command huddle 运行实时在线状态与广播服务
//
//	huddle -config configs/huddle.yaml
//	huddle -config configs/huddle.yaml -print-config
//	huddle -config configs/huddle.yaml -issue-token scoring -roles service
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/config"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/notify"
	"github.com/tokmz/huddle/pkg/persist"
	"github.com/tokmz/huddle/pkg/tracing"
	"github.com/tokmz/huddle/pkg/ws"
)

type flags struct {
	configFile  string
	printConfig bool
	issueToken  string
	tokenName   string
	tokenRoles  string
}

func main() {
	var f flags
	flag.StringVar(&f.configFile, "config", "", "config file (yaml/json/toml); env HUDDLE_* overrides")
	flag.BoolVar(&f.printConfig, "print-config", false, "print the effective config with secrets masked and exit")
	flag.StringVar(&f.issueToken, "issue-token", "", "issue a credential for the given principal id and exit")
	flag.StringVar(&f.tokenName, "name", "", "display name for -issue-token")
	flag.StringVar(&f.tokenRoles, "roles", "", "comma separated roles for -issue-token")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "huddle: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	// 回调在 logger 创建后才会被触发：Watch 在其后启动
	var log logger.Logger
	opts := []config.Option{
		config.WithOnChange(func(s *config.Settings) {
			level, err := logger.ParseLevel(s.Log.Level)
			if err != nil {
				log.Warn("ignore invalid log level", zap.String("level", s.Log.Level))
				return
			}
			log.SetLevel(level)
			log.Info("config reloaded", zap.String("log_level", level.String()))
		}),
		config.WithOnError(func(err error) {
			log.Error("config reload failed, keeping previous settings", zap.Error(err))
		}),
	}
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	} else {
		opts = append(opts, config.WithConfigName("huddle"), config.WithConfigPaths(".", "configs"), config.WithOptional(true))
	}
	cfgMgr := config.New(opts...)
	settings, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	switch {
	case f.printConfig:
		out, err := settings.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	case f.issueToken != "":
		return issueToken(settings, f)
	}

	logCfg, err := loggerConfig(settings.Log)
	if err != nil {
		return err
	}
	if log, err = logger.New(logCfg); err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfgMgr.ConfigFileUsed() != "" {
		if err := cfgMgr.Watch(); err != nil {
			log.Warn("config watch disabled", zap.Error(err))
		}
		defer cfgMgr.StopWatch()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, settings, log)
}

// serve 组装并运行：tracing → auth → persist → hub → notify → engine
func serve(ctx context.Context, s *config.Settings, log logger.Logger) error {
	if _, err := tracing.NewTracerProvider(ctx, tracingConfig(s.Tracing)); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	verifier := auth.NewJWTVerifier(jwtConfig(s.Auth))

	pcfg := persistConfig(s.Persist)
	store, err := persist.New(pcfg, log)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	async := persist.NewAsync(store, pcfg, log)
	defer func() {
		if err := async.Close(); err != nil {
			log.Warn("persist close failed", zap.Error(err))
		}
	}()

	hub, err := ws.NewHub(verifier, hubOptions(s.WS, log, archiver(async))...)
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}

	apiCfg, stopLimiter := apiConfig(s, verifier, log)
	defer stopLimiter()

	engine := huddle.New(
		huddle.WithMode(s.Server.Mode),
		huddle.WithAddr(s.Server.Addr),
		huddle.WithReadTimeout(s.Server.ReadTimeout),
		huddle.WithWriteTimeout(s.Server.WriteTimeout),
		huddle.WithIdleTimeout(s.Server.IdleTimeout),
		huddle.WithTrustedProxies(s.Server.TrustedProxies...),
		huddle.WithShutdownTimeout(s.Server.ShutdownTimeout),
		huddle.WithLogger(log),
		huddle.WithBeforeShutdown(func(ctx context.Context) {
			if err := hub.Shutdown(ctx); err != nil {
				log.Warn("hub shutdown incomplete", zap.Error(err))
			}
		}),
	)
	engine.Use(huddle.Logger(log, &huddle.LoggerConfig{ExcludePaths: []string{"/healthz"}}))
	huddle.RegisterRoutes(engine, hub, apiCfg)

	var consumer *notify.Consumer
	if s.Notify.Enabled {
		if consumer, err = notify.NewConsumer(notifyConfig(s.Notify), hub, ws.SystemPrincipal, log); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx)
	})
	if consumer != nil {
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	err = g.Wait()
	log.Info("huddle stopped",
		zap.Int64("archive_dropped", async.Dropped()),
		zap.Int64("archive_failed", async.Failed()),
	)
	return err
}

// issueToken 签发开发用凭证
func issueToken(s *config.Settings, f flags) error {
	var roles []string
	for _, r := range strings.Split(f.tokenRoles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	token, err := auth.NewIssuer(jwtConfig(s.Auth), s.Auth.TokenTTL).Issue(auth.Principal{
		ID:    f.issueToken,
		Name:  f.tokenName,
		Roles: roles,
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
