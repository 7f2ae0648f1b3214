// pipelink bridges stdin/stdout of two processes through a named pipe:
// one side runs `pipelink create <name>`, the other `pipelink open <name>`,
// and bytes flow both ways until EOF or interrupt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pipelink-go/internal/config"
	"pipelink-go/internal/logs"
	"pipelink-go/internal/pipe"
)

var (
	configFile string
	logLevel   string
	logToFile  bool
	logDir     string
	ioTimeout  time.Duration

	mustNotExist bool

	version = "v0.1.0" // injected by -ldflags during release builds
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "pipelink",
		Short:   "Named pipe IPC bridge - connect two processes by pipe name across platforms",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file in standard OS location")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")
	rootCmd.PersistentFlags().DurationVar(&ioTimeout, "timeout", 0, "Per-call I/O timeout (0 = wait indefinitely)")

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a named pipe and pump stdin/stdout through it",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}
	createCmd.Flags().BoolVar(&mustNotExist, "must-not-exist", false,
		"Fail if another process already owns the pipe name")

	openCmd := &cobra.Command{
		Use:   "open <name>",
		Short: "Open an existing named pipe and pump stdin/stdout through it",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen,
	}

	rootCmd.AddCommand(createCmd, openCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCreate(cmd *cobra.Command, args []string) error {
	return runEndpoint(cmd, args[0], func(p *pipe.NamedPipe) error {
		return p.CreateNewPipe(args[0], mustNotExist)
	})
}

func runOpen(cmd *cobra.Command, args []string) error {
	return runEndpoint(cmd, args[0], func(p *pipe.NamedPipe) error {
		return p.OpenExisting(args[0])
	})
}

func runEndpoint(cmd *cobra.Command, name string, attach func(*pipe.NamedPipe) error) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := logs.SetupCommandLogger(true, logLevel, logToFile, logDir)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	timeout := cfg.Pipe.IOTimeout
	if cmd.Flags().Changed("timeout") || cmd.InheritedFlags().Changed("timeout") {
		timeout = ioTimeout
	}

	p := pipe.New(pipe.WithLogger(logger))
	if err := attach(p); err != nil {
		return fmt.Errorf("cannot attach to pipe %q: %w", name, err)
	}
	defer p.Close()
	logger.Info("pipe attached", zap.String("pipe", p.Name()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return pumpStdio(ctx, p, cfg.Pipe.BufferSize, timeout, logger)
}

// pumpStdio shuttles bytes pipe→stdout and stdin→pipe until either side
// reaches EOF, an I/O error occurs, or the context is cancelled. Closing the
// pipe is what unblocks the reader goroutine on shutdown.
func pumpStdio(ctx context.Context, p *pipe.NamedPipe, bufSize int, timeout time.Duration, logger *zap.Logger) error {
	done := make(chan error, 2)

	go func() {
		buf := make([]byte, bufSize)
		for {
			n, err := p.Read(buf, timeout)
			if n > 0 {
				if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
					done <- fmt.Errorf("stdout: %w", werr)
					return
				}
			}
			if err != nil {
				done <- filterShutdownErr(err)
				return
			}
		}
	}()

	go func() {
		buf := make([]byte, bufSize)
		for {
			n, rerr := os.Stdin.Read(buf)
			if n > 0 {
				if _, werr := p.Write(buf[:n], timeout); werr != nil {
					done <- filterShutdownErr(werr)
					return
				}
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					done <- nil
				} else {
					done <- fmt.Errorf("stdin: %w", rerr)
				}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("interrupted, closing pipe", zap.String("pipe", p.Name()))
		p.Close()
		<-done
		return nil
	case err := <-done:
		p.Close()
		return err
	}
}

// filterShutdownErr maps the expected end-of-session conditions to nil so
// they don't surface as command failures.
func filterShutdownErr(err error) error {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, pipe.ErrClosed),
		errors.Is(err, pipe.ErrNotOpen):
		return nil
	default:
		return err
	}
}
