package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/config"
	"github.com/complyport/screening-relay/internal/db"
	"github.com/complyport/screening-relay/internal/flowtype"
	"github.com/complyport/screening-relay/internal/logger"
	"github.com/complyport/screening-relay/internal/state"
	"github.com/complyport/screening-relay/internal/token"
	"github.com/complyport/screening-relay/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the consumer-side event watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		defer func() { _ = logger.Log.Sync() }()

		// durable watcher state: redis if configured, otherwise in-memory
		var stateStore state.Store = state.NewMemoryStore()
		var tokenStore token.Store = token.NewMemoryStore()
		if cfg.Redis.Addr != "" {
			redisClient, err := db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()
			stateStore = state.NewRedisStore(redisClient, cfg.Watcher.StatePrefix)
			tokenStore = token.NewRedisStore(redisClient, cfg.Watcher.StatePrefix+":token")
		} else {
			logger.Log.Warn("no redis configured, watcher state will not survive restarts")
		}

		// flow-type lookup: mysql if configured, otherwise everything is
		// treated as unknown (nothing suppressed)
		var flows flowtype.Store = flowtype.NewMemoryStore()
		if cfg.MySQL.DSN != "" {
			mysqlDB, err := db.OpenSQL("mysql", cfg.MySQL.DSN, db.SQLOpts{
				MaxOpenConns:    cfg.MySQL.MaxOpenConns,
				MaxIdleConns:    cfg.MySQL.MaxIdleConns,
				ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
				ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
				PingTimeout:     cfg.MySQL.PingTimeout,
			})
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer func() { _ = mysqlDB.Close() }()
			flows = flowtype.NewMySQLStore(mysqlDB)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		trk, err := tracker.New(ctx, tracker.Options{
			Store:      stateStore,
			Flows:      flows,
			Source:     cfg.Relay.Source,
			MaxKeys:    cfg.Watcher.MaxKeys,
			MaxHistory: cfg.Watcher.MaxHistory,
			Logger:     logger.Log,
		})
		if err != nil {
			return fmt.Errorf("init tracker: %w", err)
		}

		client := tracker.NewClient(cfg.Watcher.RelayURL, 15*time.Second)
		if cfg.Token.PrimaryURL != "" || cfg.Token.SecondaryURL != "" {
			mgr := token.NewManager(token.Config{
				PrimaryURL:    cfg.Token.PrimaryURL,
				SecondaryURL:  cfg.Token.SecondaryURL,
				ClientID:      cfg.Token.ClientID,
				RefreshBuffer: cfg.Token.RefreshBuffer,
				PrimaryTTL:    cfg.Token.PrimaryTTL,
				Timeout:       time.Duration(cfg.Token.TimeoutMs) * time.Millisecond,
			}, tokenStore, logger.Log)
			client = client.WithTokenSource(mgr)
		}

		errCh := make(chan error, 1)
		go func() {
			switch cfg.Watcher.Mode {
			case "push":
				listener := tracker.NewListener(client, trk, cfg.Watcher.RetryWait, logger.Log)
				errCh <- listener.Run(ctx)
			default:
				poller := tracker.NewPoller(client, trk, cfg.Watcher.PollInterval, logger.Log)
				errCh <- poller.Run(ctx)
			}
		}()

		logger.Log.Info("watcher started",
			zap.String("mode", cfg.Watcher.Mode),
			zap.String("relay_url", cfg.Watcher.RelayURL),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
			cancel()
			<-errCh
		case err := <-errCh:
			if err != nil {
				log.Printf("watcher exited: %v", err)
			}
		}

		return nil
	},
}
