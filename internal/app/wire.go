package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/osmowager/wagerbot/internal/blob/s3"
	"github.com/osmowager/wagerbot/internal/cache/redis"
	"github.com/osmowager/wagerbot/internal/config"
	"github.com/osmowager/wagerbot/internal/domain"
	"github.com/osmowager/wagerbot/internal/ledger"
	"github.com/osmowager/wagerbot/internal/notify"
	"github.com/osmowager/wagerbot/internal/server/ws"
	"github.com/osmowager/wagerbot/internal/store/file"
	"github.com/osmowager/wagerbot/internal/transfer"
	"github.com/osmowager/wagerbot/internal/wallet"
)

// Dependencies bundles every domain-level dependency the daemon needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store    domain.MarketStore
	Wallets  domain.WalletDirectory
	Transfer domain.TransferService

	// Limiter is nil when Redis is disabled.
	Limiter domain.RateLimiter

	Engine *ledger.Engine
	Hub    *ws.Hub
}

// fanoutSink delivers each event to every registered sink.
type fanoutSink []domain.EventSink

func (f fanoutSink) Publish(ctx context.Context, ev domain.Event) {
	for _, s := range f {
		s.Publish(ctx, ev)
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- S3 archive for markets evicted from the slot buffer ---
	var storeOpts []file.Option
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: connect s3: %w", err)
		}
		archiver := s3blob.NewMarketArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
		storeOpts = append(storeOpts, file.WithArchiver(archiver))
		logger.InfoContext(ctx, "s3 archive enabled",
			slog.String("bucket", cfg.S3.Bucket),
		)
	}

	// --- Market store ---
	storeOpts = append(storeOpts, file.WithCapacity(cfg.Storage.Capacity))
	store, err := file.Open(cfg.Storage.DataPath, logger, storeOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: open market store: %w", err)
	}
	deps.Store = store

	// --- Wallet directory ---
	deps.Wallets = wallet.NewDirectory(cfg.Storage.WalletsPath)

	// --- Transfer daemon client ---
	deps.Transfer = transfer.NewClient(transfer.ClientConfig{
		BaseURL: cfg.Transfer.BaseURL,
		Denoms:  cfg.Transfer.Denoms,
	}, logger)

	// --- Redis (distributed lock + creation rate limit) ---
	var engineOpts []ledger.Option
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: connect redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		engineOpts = append(engineOpts, ledger.WithLockManager(redis.NewLockManager(redisClient)))
		deps.Limiter = redis.NewRateLimiter(redisClient)
		logger.InfoContext(ctx, "redis enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// --- Event sinks: live feed + chat announcements ---
	deps.Hub = ws.NewHub(logger)
	sinks := fanoutSink{deps.Hub}

	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		sinks = append(sinks, notify.NewAnnouncer(notifier, logger))
	}
	engineOpts = append(engineOpts, ledger.WithEventSink(sinks))

	// --- Ledger engine ---
	deps.Engine = ledger.NewEngine(
		ledger.Config{
			EscrowAddress:    cfg.Ledger.EscrowAddress,
			EscrowCredential: domain.Credential(cfg.Ledger.EscrowMnemonic),
			FeePercent:       cfg.FeePercentDecimal(),
			MinWager:         cfg.MinWagerDecimal(),
			SupportedTokens:  cfg.Ledger.SupportedTokens,
			Admins:           cfg.Ledger.Admins,
			MaxLockDuration:  cfg.Ledger.MaxLockDuration.Duration,
		},
		deps.Store,
		deps.Wallets,
		deps.Transfer,
		logger,
		engineOpts...,
	)

	return deps, cleanup, nil
}
