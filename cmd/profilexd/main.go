// Command profilexd serves aggregated identity profiles for blockchain
// addresses, answering from a persisted cache and refreshing stale sources
// in the background.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/theplant/profilex"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("profilexd exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := profilex.LoadConfig()
	if err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return errors.Wrap(err, "open database")
	}

	store := profilex.NewGORMStore(&profilex.GORMStoreConfig{
		DB:        db,
		TableName: cfg.TableName,
	})
	if err := store.Migrate(context.Background()); err != nil {
		return err
	}

	registry := profilex.NewRegistry(defaultSources()...)
	fetcher := profilex.NewHTTPFetcher(nil)

	coord := profilex.NewCoordinator(store, registry, fetcher,
		profilex.WithSuccessTTL(cfg.SuccessTTL),
		profilex.WithErrorTTL(cfg.ErrorTTL),
		profilex.WithSourceTimeout(cfg.SourceTimeout),
		profilex.WithFetchConcurrency(cfg.FetchConcurrency),
		profilex.WithEventLog(profilex.NewEventLog(cfg.EventLogSize)),
		profilex.WithLogger(log),
	)
	agg := profilex.NewAggregator(store, registry, coord,
		profilex.WithRefreshLimit(cfg.RefreshLimit),
	)

	responses, err := profilex.NewBigCacheResponses(context.Background(), cfg.ResponseCacheTTL)
	if err != nil {
		return err
	}
	defer responses.Close()

	handler := profilex.NewHandler(agg,
		profilex.WithResponseCache(responses),
		profilex.WithOverride("ens", "avatar"),
		profilex.WithHandlerLogger(log),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// defaultSources wires the stock identity providers: ENS resolution and
// Farcaster social stats.
func defaultSources() []profilex.Source {
	return []profilex.Source{
		{
			Name:    "ens",
			Default: json.RawMessage(`{"name":null,"address":null,"avatar":null}`),
			BuildRequest: func(ctx context.Context, subject string) (*http.Request, error) {
				url := "https://api.ensideas.com/ens/resolve/" + subject
				return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			},
		},
		{
			Name:    "farcaster",
			Default: json.RawMessage(`{"followers":0,"following":0,"posts":0}`),
			BuildRequest: func(ctx context.Context, subject string) (*http.Request, error) {
				url := "https://api.web3.bio/profile/farcaster/" + subject
				return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			},
		},
	}
}
