// Command run executes a bindgen module with the platform services wired
// in: local storage, fetch, timers, console and the loading screen.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wbg-runtime/platform/fetch"
	"github.com/wippyai/wbg-runtime/platform/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "run <module.wasm> [flags]",
		Short: "Run a bindgen WebAssembly module",
		Long: `Run loads a module built against the wbg import ABI, runs its start
function and drives its event loop until it goes idle or is interrupted.

Progress reported by the module is shown as a progress bar when stdout is a
terminal, and logged otherwise.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.wasmFile = args[0]
			if opts.list {
				return listModule(cmd.Context(), opts, cmd.OutOrStdout())
			}
			if opts.plain || !term.IsTerminal(int(os.Stdout.Fd())) {
				return runPlain(cmd.Context(), opts, cmd.ErrOrStderr())
			}
			return runInteractive(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.call, "call", "", "export to call after start, e.g. main")
	f.StringArrayVar(&opts.args, "arg", nil, "argument for --call; numbers are passed as numbers (repeatable)")
	f.BoolVar(&opts.list, "list", false, "list exports and imports, then exit")
	f.StringVar(&opts.storagePath, "storage", "", "local storage database file (default: in memory)")
	f.StringVar(&opts.origin, "origin", storage.DefaultOrigin, "local storage origin")
	f.BoolVar(&opts.noStorage, "no-storage", false, "disable local storage")
	f.Int64Var(&opts.quota, "storage-quota", storage.DefaultQuotaBytes, "local storage quota in bytes")
	f.StringVar(&opts.baseURL, "base-url", "", "base URL for relative fetches")
	f.Int64Var(&opts.maxBody, "max-body", fetch.DefaultMaxBodyBytes, "largest response body read by fetch, in bytes")
	f.DurationVar(&opts.fetchTimeout, "fetch-timeout", fetch.DefaultTimeout, "timeout of one fetch")
	f.Uint32Var(&opts.memoryPages, "memory-pages", 0, "linear memory limit in 64KiB pages (0: no limit)")
	f.Float64Var(&opts.frameRate, "frame-rate", 60, "animation frames per second")
	f.DurationVar(&opts.timeout, "timeout", 0, "stop the module after this long (0: never)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")
	f.BoolVar(&opts.traceHandles, "trace-handles", false, "log every handle allocation and release")
	f.BoolVar(&opts.plain, "plain", false, "log progress instead of drawing a progress bar")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to this file when drawing a progress bar")
	return cmd
}

// withTimeout bounds ctx by opts.timeout when set.
func withTimeout(ctx context.Context, opts *options) (context.Context, context.CancelFunc) {
	if opts.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.timeout)
}
