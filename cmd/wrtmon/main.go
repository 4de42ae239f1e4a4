// wrtmon hosts the device API core on the local machine: it feeds host state
// into the platform collaborators and shows SystemInfo properties either as a
// live dashboard or as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/config"
	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/ui"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code once every deferred cleanup has run.
func run(args []string) int {
	cfg, err := config.FromFlags(args)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "wrtmon: %v\n", err)
		}
		return 2
	}
	log := logging.NewFile(logging.FileConfig{Path: cfg.LogFile, MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7}, cfg.LogLevel)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := newRuntime(ctx, cfg, log)
	defer rt.close()
	go rt.feeder.Run(ctx)
	log.Infof("wrtmon: %s profile, %d features, app %s", profileName(rt.features), len(rt.features.All()), cfg.AppID)

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           newRouter(rt.info, rt.registry, 5*cfg.Interval),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("wrtmon: http server: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("wrtmon: serving metrics on %s", cfg.HTTPAddr)
	}

	switch {
	case cfg.JSON:
		err = writeJSON(os.Stdout, rt.info, 5*cfg.Interval)
	case cfg.JSONStream:
		err = rt.stream(ctx, os.Stdout)
	default:
		board := ui.NewBoard()
		if err = rt.announce(board); err != nil {
			log.Warnf("wrtmon: message port self-test failed: %v", err)
		}
		if _, err = ui.Watch(rt.loop, rt.info, watchedKinds(rt.features), board); err == nil {
			err = ui.RunTUI(board, 0)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "wrtmon: %v\n", err)
		return 1
	}
	return 0
}
