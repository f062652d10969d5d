package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/kupumalam/internal/cluster"
	"github.com/keshon/kupumalam/internal/commands"
	"github.com/keshon/kupumalam/internal/config"
	"github.com/keshon/kupumalam/internal/cooldown"
	"github.com/keshon/kupumalam/internal/discord"
	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/logging"
	"github.com/keshon/kupumalam/internal/paginator"
	"github.com/keshon/kupumalam/internal/registry"
	"github.com/keshon/kupumalam/internal/store"
	"github.com/keshon/kupumalam/internal/telemetry"
	"github.com/keshon/kupumalam/pkg/cmd"
	"github.com/keshon/kupumalam/pkg/jobmgr"

	"github.com/rs/zerolog/log"
)

const (
	appName = "kupumalam"

	// presenceDelay leaves shards time to connect before the first status.
	presenceDelay = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logs := logging.Setup(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("app", appName).Int("cluster", cfg.ClusterID).Msg("starting")
	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
		logs.Close()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		ClusterID:   cfg.ClusterID,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	st, err := store.Open(cfg.StoragePath, store.Options{FlushInterval: 30 * time.Second, Backups: 3})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	reg := registry.New(registry.Source{
		FS:           os.DirFS("."),
		Commands:     cfg.CommandsDir,
		ContextMenus: cfg.ContextMenuDir,
	})
	report, err := reg.Load()
	if err != nil {
		return err
	}
	log.Info().Int("loaded", report.Loaded).Strs("skipped", report.Skipped).Msg("command tree loaded")

	limiter := cooldown.New(cfg.CooldownPolicy())

	jobs := jobmgr.NewManager(ctx)
	defer jobs.Shutdown()

	mustStart(jobs, "store-flush", st.Run)
	mustStart(jobs, "cooldown-sweeper", func(ctx context.Context) error {
		return limiter.RunSweeper(ctx, time.Minute)
	})
	if cfg.WatchCommands {
		w, err := registry.NewWatcher(reg, ".")
		if err != nil {
			return err
		}
		mustStart(jobs, "command-watcher", w.Run)
	}

	bot, err := discord.New(discord.Options{
		Token:       cfg.DiscordToken,
		ShardCount:  cfg.ShardCount,
		ShardIDs:    cfg.Shards,
		ClusterID:   cfg.ClusterID,
		ClientID:    cfg.ClientID,
		PublicSlash: cfg.PublicSlash,
		DevGuild:    cfg.DevGuild,
	})
	if err != nil {
		return err
	}

	agg, local, err := buildCluster(cfg, bot)
	if err != nil {
		return err
	}
	if cfg.ClusterListen != "" {
		h := cluster.NewHandler(local, cfg.ClusterToken)
		mustStart(jobs, "cluster-server", func(ctx context.Context) error {
			return cluster.Serve(ctx, cfg.ClusterListen, h)
		})
	}
	mustStart(jobs, "presence", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(presenceDelay):
		}
		return cluster.RunPresence(ctx, agg, bot, cfg.PresenceInterval)
	})

	pager := paginator.NewManager(paginator.Options{Timeout: paginator.DefaultTimeout})
	defer pager.CloseAll()

	publisher := discord.NewPublisher(bot.REST(), st)

	handlers := cmd.NewRegistry()
	err = commands.Register(handlers, commands.Deps{
		Runtime:  bot,
		Catalog:  reg,
		Mentions: publisher,
		Cluster:  agg,
		Pager:    pager,
	}, commands.WithCommandLogger())
	if err != nil {
		return err
	}

	access := bot.Access()
	pipeline := dispatch.New(dispatch.Config{
		Registry:     reg,
		Handlers:     handlers,
		Cooldowns:    limiter,
		Capabilities: access,
		Identity:     access,
		Developers:   cfg,
	})

	err = bot.Run(ctx, discord.Handlers{
		Pipeline:  pipeline,
		Pager:     pager,
		Publisher: publisher,
		Commands:  reg.All,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildCluster(cfg *config.Config, bot *discord.Bot) (*cluster.Aggregator, *cluster.LocalPeer, error) {
	local := cluster.NewLocalPeer(cfg.ClusterID, bot.Snapshot)
	remotes, err := cfg.Peers()
	if err != nil {
		return nil, nil, err
	}
	peers := []cluster.Peer{local}
	for _, p := range remotes {
		peers = append(peers, cluster.NewHTTPPeer(p.ID, p.URL, cfg.ClusterToken))
	}
	return cluster.NewAggregator(cfg.ClusterTimeout, peers...), local, nil
}

func mustStart(jobs *jobmgr.Manager, name string, fn func(ctx context.Context) error) {
	if err := jobs.Start(name, fn); err != nil {
		log.Fatal().Err(err).Str("job", name).Msg("failed to start background job")
	}
}
