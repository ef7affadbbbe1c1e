package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/internal/config"
	"golang.org/x/sync/errgroup"
)

const roleEnv = "POPULATION_ROLE"

// supervise starts the workers and waits for all of them to exit.
// Workers are stopped with SIGTERM when ctx is done.
func supervise(ctx context.Context, cfg config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	log.Infow("Starting workers", "workers", cfg.Workers, "port", cfg.Port)

	eg := &errgroup.Group{}
	for i := 0; i < cfg.Workers; i++ {
		cmd := workerCommand(ctx, exe)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start worker #%d: %w", i+1, err)
		}
		pid := cmd.Process.Pid
		log.Infow("Worker started", "worker", i+1, "pid", pid)

		eg.Go(func() error {
			err := cmd.Wait()
			if ctx.Err() != nil {
				log.Infow("Worker stopped", "pid", pid, "code", cmd.ProcessState.ExitCode())
				return nil
			}
			log.Warnw("Worker died", "pid", pid, "code", cmd.ProcessState.ExitCode(), "err", err)
			return nil
		})
	}

	if err := waitReady(ctx, cfg.Port); err != nil {
		log.Warnw("Workers did not report ready", "err", err)
	} else {
		log.Info("Workers ready")
	}

	return eg.Wait()
}

func workerCommand(ctx context.Context, exe string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), roleEnv+"="+popcache.RoleWorker.String())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = shutdownTimeout + time.Second
	return cmd
}

// waitReady polls /healthz until a worker answers.
func waitReady(ctx context.Context, port int) error {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 20
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/healthz", port), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz: %s", resp.Status)
	}
	return nil
}
