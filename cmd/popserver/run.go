package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fishy/errbatch"
	"github.com/libp2p/go-reuseport"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/bulk/csvinput"
	"go.mercari.io/popcache/internal/config"
	"go.mercari.io/popcache/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, cfg config.Config) (err error) {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		batch := errbatch.NewErrBatch()
		batch.Add(err)
		batch.Add(b.Close())
		err = batch.Compile()
	}()

	m := popcache.NewManager(
		b.cache,
		b.store,
		popcache.WithLogger(logf),
		popcache.WithMaxInflightWrites(cfg.MaxInflightWrites),
	)

	if cfg.Role == popcache.RolePrimary {
		if err := hydrate(ctx, cfg, m); err != nil {
			return err
		}
		if !cfg.InProcess() {
			batch := errbatch.NewErrBatch()
			batch.Add(supervise(ctx, cfg))
			batch.Add(closeManager(m))
			return batch.Compile()
		}
	}

	return serve(ctx, cfg, m)
}

func hydrate(ctx context.Context, cfg config.Config, m *popcache.Manager) error {
	var src popcache.BulkInput
	if cfg.DataPath != "" {
		log.Infow("Loading bulk input", "path", cfg.DataPath)
		src = csvinput.Open(cfg.DataPath)
	} else {
		log.Info("Skipping bulk input since POPULATION_DATA_PATH was not provided")
	}

	start := time.Now()
	result, err := popcache.Hydrate(ctx, popcache.RolePrimary, m, src)
	if err != nil {
		return err
	}
	log.Infow("Hydrated", "persisted", result.Persisted, "applied", result.Bulk.Applied, "skipped", result.Bulk.Skipped, "elapsed", time.Since(start))

	return nil
}

func serve(ctx context.Context, cfg config.Config, m *popcache.Manager) error {
	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))
	ln, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           httpapi.New(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Infow("Ready", "role", cfg.Role, "pid", os.Getpid(), "addr", ln.Addr().String())

	batch := errbatch.NewErrBatch()
	select {
	case err := <-errCh:
		batch.Add(err)
	case <-ctx.Done():
		log.Infow("Shutting down", "role", cfg.Role, "pid", os.Getpid())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		batch.Add(srv.Shutdown(shutdownCtx))
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			batch.Add(err)
		}
	}
	batch.Add(closeManager(m))

	return batch.Compile()
}

// closeManager drains the durable writes still in flight.
func closeManager(m *popcache.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return m.Close(ctx)
}
