package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/api"
	"github.com/tweetscout/tweetscout/internal/bridge"
	"github.com/tweetscout/tweetscout/internal/config"
	"github.com/tweetscout/tweetscout/internal/jobs"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

func main() {
	jc := config.ReadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewSQLiteStore(jc.GetString("db_path", ""))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open identity store")
	}
	defer st.Close()

	if err := seedIdentities(ctx, st, jc.GetStringSlice("twitter_accounts", nil)); err != nil {
		logrus.WithError(err).Fatal("Failed to seed identities")
	}

	executor, err := bridge.NewProcessExecutor(bridge.Config{
		NodePath:  jc.GetString("node_path", "node"),
		BridgeDir: jc.GetString("bridge_dir", ""),
		Timeout:   jc.GetDuration("bridge_timeout_seconds", 30),
		MaxProcs:  jc.GetInt("bridge_max_procs", 4),
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up bridge executor")
	}
	if err := executor.EnsureDependencies(ctx); err != nil {
		logrus.WithError(err).Warn("Bridge dependencies unavailable, bridged operations will fail until installed")
	}

	bufSize, _ := jc["stats_buf_size"].(uint)
	if bufSize == 0 {
		bufSize = 128
	}
	collector := stats.StartCollector(bufSize)

	enhanced := jobs.NewEnhancedAPI(jc, collector, st, executor)

	listenAddress := jc.GetString("listen_address", ":8080")
	if err := api.Start(ctx, listenAddress, jc, enhanced, collector, st); err != nil {
		logrus.WithError(err).Fatal("Server exited")
	}
}

// seedIdentities makes sure every configured user:password account has an
// identity row. Existing rows keep their stored credentials.
func seedIdentities(ctx context.Context, st store.Store, accounts []string) error {
	for _, pair := range accounts {
		credentials := strings.Split(pair, ":")
		if len(credentials) != 2 {
			logrus.Warnf("invalid account credentials: %s", pair)
			continue
		}
		identity := &types.Identity{
			Username: strings.TrimSpace(credentials[0]),
			Password: strings.TrimSpace(credentials[1]),
		}
		if err := st.UpsertIdentity(ctx, identity); err != nil {
			return err
		}
		logrus.Debugf("Seeded identity %s", identity.Username)
	}
	return nil
}
