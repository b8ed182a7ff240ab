package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaikasekai/forecastd/internal/config"
	"github.com/kaikasekai/forecastd/internal/debuglog"
	"github.com/kaikasekai/forecastd/internal/feed"
	"github.com/kaikasekai/forecastd/internal/ledger"
	"github.com/kaikasekai/forecastd/internal/mail"
	"github.com/kaikasekai/forecastd/internal/notify"
	"github.com/kaikasekai/forecastd/internal/proofs"
	"github.com/kaikasekai/forecastd/internal/workflow"
)

// journalEntries bounds the in-memory debug journal.
const journalEntries = 256

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function. The chain-facing fields (Gateway, Session, Runner, Gallery) are
// nil in accuracy mode, which never dials a node.
type Dependencies struct {
	FeedLoader *feed.Loader
	FeedStore  *feed.Store
	Journal    *debuglog.Journal
	Notifier   *notify.Notifier
	Mail       *mail.Relay

	Session *ledger.Session
	Gateway *ledger.Gateway
	Runner  *workflow.Runner
	Gallery *proofs.Gallery
}

// needsChain returns true for modes that talk to the ledger.
func needsChain(mode string) bool {
	return strings.ToLower(mode) == "serve"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		FeedStore: feed.NewStore(),
		Journal:   debuglog.New(journalEntries),
		Mail:      mail.NewRelay(mail.Config(cfg.Mail)),
	}

	deps.FeedLoader = feed.NewLoader(feed.Config{
		URL:            cfg.Feed.URL,
		WarmupRows:     cfg.Feed.WarmupRows,
		WindowRows:     cfg.Feed.WindowRows,
		DateColumn:     cfg.Feed.DateColumn,
		ActualColumn:   cfg.Feed.ActualColumn,
		PredictColumn:  cfg.Feed.PredictColumn,
		MAColumn:       cfg.Feed.MAColumn,
		ScenarioPrefix: cfg.Feed.ScenarioPrefix,
		Timeout:        cfg.Feed.Timeout.Duration,
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Ledger (only for modes that talk to the chain) ---
	if needsChain(cfg.Mode) {
		client, err := ledger.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger: %w", err)
		}
		closers = append(closers, client.Close)

		// No private key means read-only operation: queries work, paid
		// actions report the missing wallet session.
		if cfg.Wallet.PrivateKey != "" {
			deps.Session, err = ledger.NewSession(cfg.Wallet.PrivateKey, cfg.Chain.ChainID)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: session: %w", err)
			}
		}

		deps.Gateway = ledger.NewGateway(client, ledger.Config{
			ContractAddress: cfg.Chain.ContractAddress,
			TokenAddress:    cfg.Chain.TokenAddress,
			NFTAddress:      cfg.Chain.NFTAddress,
		}, deps.Session, logger)

		var account common.Address
		if deps.Session != nil {
			account = deps.Session.Address()
		}
		deps.Runner = workflow.NewRunner(workflow.RunnerConfig{
			Ledger:        deps.Gateway,
			Account:       account,
			HasSession:    deps.Session != nil,
			TokenDecimals: cfg.Chain.TokenDecimals,
			StepTimeout:   cfg.Workflow.StepTimeout.Duration,
			Journal:       deps.Journal,
			Notifier:      deps.Notifier,
			Logger:        logger,
		})

		deps.Gallery = proofs.NewGallery(deps.Gateway, proofs.Config{
			NFTAddress:  cfg.Chain.NFTAddress,
			ExplorerURL: cfg.Chain.ExplorerURL,
			IPFSGateway: cfg.Chain.IPFSGateway,
		}, logger)
	}

	return deps, cleanup, nil
}
