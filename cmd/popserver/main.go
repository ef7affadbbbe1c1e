// Command popserver serves the population API.
//
// The primary process hydrates the shared cache, then either serves requests itself
// (POPULATION_CACHE=local) or starts POPULATION_WORKERS copies of itself with
// POPULATION_ROLE=worker, all listening on the same port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"go.mercari.io/popcache/internal/config"
)

var log = logging.Logger("popserver")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "popserver:", err)
		os.Exit(2)
	}

	lvl, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "popserver: POPULATION_LOG_LEVEL:", err)
		os.Exit(2)
	}
	logging.SetAllLoggers(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Errorw("Exited with error", "role", cfg.Role, "pid", os.Getpid(), "err", err)
		os.Exit(1)
	}
}
