package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wbg-runtime/engine"
	"github.com/wippyai/wbg-runtime/platform"
	"github.com/wippyai/wbg-runtime/platform/fetch"
	"github.com/wippyai/wbg-runtime/platform/storage"
	"github.com/wippyai/wbg-runtime/platform/timers"
	"github.com/wippyai/wbg-runtime/platform/ui"
	"github.com/wippyai/wbg-runtime/runtime"
)

type options struct {
	wasmFile string
	call     string
	args     []string
	list     bool

	storagePath string
	origin      string
	noStorage   bool
	quota       int64

	baseURL      string
	maxBody      int64
	fetchTimeout time.Duration

	memoryPages  uint32
	frameRate    float64
	timeout      time.Duration
	verbose      bool
	traceHandles bool
	plain        bool
	logFile      string
}

func (o *options) platformConfig(reporter ui.Reporter) platform.Config {
	return platform.Config{
		Storage: storage.Config{
			Path:       o.storagePath,
			Origin:     o.origin,
			Disabled:   o.noStorage,
			QuotaBytes: o.quota,
		},
		Fetch: fetch.Config{
			BaseURL:      o.baseURL,
			MaxBodyBytes: o.maxBody,
			Timeout:      o.fetchTimeout,
		},
		Timers:   timers.Config{FrameRate: o.frameRate},
		Reporter: reporter,
	}
}

// newLogger returns a console logger writing to w.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// runModule loads, starts and drives the module until its event loop is
// idle, ctx is done or the module fails. Interruption is not an error.
func runModule(ctx context.Context, opts *options, logger *zap.Logger, reporter ui.Reporter) error {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}
	engine.SetLogger(logger.Named("engine"))

	rt, err := runtime.New(ctx, runtime.Config{
		Logger:           logger,
		OnFatal:          reporter.ShowError,
		MemoryLimitPages: opts.memoryPages,
		TraceHandles:     opts.traceHandles,
	})
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	services, err := platform.Register(ctx, rt, opts.platformConfig(reporter))
	if err != nil {
		return fmt.Errorf("register platform: %w", err)
	}
	defer services.Close()

	mod, err := rt.Load(ctx, data)
	if err != nil {
		return fmt.Errorf("load %s: %w", opts.wasmFile, err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return stopped(ctx, fmt.Errorf("start: %w", err))
	}
	defer inst.Close(context.Background())

	if opts.call != "" {
		if err := inst.Call(ctx, opts.call, parseArgs(opts.args)...); err != nil {
			return stopped(ctx, fmt.Errorf("call %s: %w", opts.call, err))
		}
	}
	if err := inst.Run(ctx); err != nil {
		return stopped(ctx, err)
	}
	logger.Debug("event loop idle")
	return nil
}

// stopped treats an error that follows ctx cancellation as a normal
// interruption and returns nil for it.
func stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// parseArgs passes integers as i32, other numbers as f64 and the rest as
// strings.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, s := range raw {
		if n, err := strconv.ParseInt(s, 10, 32); err == nil {
			args[i] = int32(n)
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			args[i] = f
			continue
		}
		args[i] = s
	}
	return args
}

func runPlain(ctx context.Context, opts *options, stderr io.Writer) error {
	logger := newLogger(stderr, opts.verbose)
	defer logger.Sync()

	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()
	err := runModule(ctx, opts, logger, ui.NewLogReporter(logger))
	if err != nil {
		logger.Error("run failed", zap.Error(err))
	}
	return err
}

func listModule(ctx context.Context, opts *options, out io.Writer) error {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}
	rt, err := runtime.New(ctx, runtime.Config{})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	services, err := platform.Register(ctx, rt, opts.platformConfig(ui.NewLogReporter(nil)))
	if err != nil {
		return err
	}
	defer services.Close()

	fmt.Fprintf(out, "Module: %s\n", opts.wasmFile)
	mod, err := rt.Load(ctx, data)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	fmt.Fprintf(out, "\nExports:\n")
	for _, e := range mod.Exports() {
		fmt.Fprintf(out, "  %s\n", e.Name)
	}
	fmt.Fprintf(out, "\nImports:\n")
	for _, name := range mod.Imports() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
