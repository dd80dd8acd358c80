// Package platform registers the host services a module's generated
// bindings import besides the core intrinsics: clock, console, random,
// local storage, timers, fetch and the loading/error UI.
package platform

import (
	"context"

	"github.com/wippyai/wbg-runtime/platform/clock"
	"github.com/wippyai/wbg-runtime/platform/console"
	"github.com/wippyai/wbg-runtime/platform/fetch"
	"github.com/wippyai/wbg-runtime/platform/random"
	"github.com/wippyai/wbg-runtime/platform/storage"
	"github.com/wippyai/wbg-runtime/platform/timers"
	"github.com/wippyai/wbg-runtime/platform/ui"
	"github.com/wippyai/wbg-runtime/runtime"
)

// Config configures the platform services.
type Config struct {
	Storage storage.Config
	Fetch   fetch.Config
	Timers  timers.Config

	// Reporter receives progress and fatal errors. Nil logs them.
	Reporter ui.Reporter
}

// Services are the registered platform services.
type Services struct {
	Store    *storage.Store
	Reporter ui.Reporter
}

// Register opens the services described by cfg and registers their
// imports with rt. Close the returned Services when rt is closed.
func Register(ctx context.Context, rt *runtime.Runtime, cfg Config) (*Services, error) {
	logger := rt.Logger()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	fetchHost, err := fetch.New(cfg.Fetch)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = ui.NewLogReporter(logger)
	}

	clk := clock.New()
	timerCfg := cfg.Timers
	if timerCfg.Clock == nil {
		timerCfg.Clock = clk
	}

	hosts := []runtime.Host{
		clk,
		console.New(logger),
		random.New(),
		storage.NewHost(store),
		timers.New(timerCfg),
		fetchHost,
		ui.NewHost(reporter),
	}
	for _, h := range hosts {
		if err := rt.RegisterHost(h); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return &Services{Store: store, Reporter: reporter}, nil
}

// Close releases the storage database.
func (s *Services) Close() error {
	return s.Store.Close()
}
