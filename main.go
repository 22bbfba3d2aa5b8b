package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"discord-entity-cache/internal/config"
	"discord-entity-cache/internal/payload"
	"discord-entity-cache/internal/service"
	"discord-entity-cache/internal/state"
	"discord-entity-cache/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// maxFrame bounds one recorded gateway frame; GUILD_CREATE of large guilds
// runs to several megabytes
const maxFrame = 64 << 20

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "entitycache",
		Short:         "Client-side Discord entity cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file, YAML or JSON (default: built-in defaults)")

	loadConfig := func() (config.Config, error) {
		if configPath == "" {
			return config.Default(), nil
		}
		return config.Load(configPath)
	}

	root.AddCommand(newRunCmd(loadConfig), newReplayCmd(loadConfig))
	return root
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newRunCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and keep the cache synchronized",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := service.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.Run(ctx)
		},
	}
}

func newReplayCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var (
		file   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed recorded gateway frames (one JSON frame per line) through the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			cache := state.New(
				state.WithHistoryCapacity(cfg.History.Capacity),
				state.WithGCIdle(cfg.History.GCIdle.Std()),
				state.WithRetainedMessages(cfg.History.Retained),
			)
			rep, err := replay(cmd.Context(), in, transport.NewGateway(cache, logger), strict)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep, cache.Stats())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Frames file, - for stdin")
	cmd.Flags().BoolVar(&strict, "strict", false, "Stop at the first event the cache rejects")
	return cmd
}

type report struct {
	Frames    int
	Applied   int
	Skipped   int
	Rejected  int
	Malformed int
}

func replay(ctx context.Context, in io.Reader, gw *transport.Gateway, strict bool) (report, error) {
	var rep report

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrame)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		rep.Frames++

		frame, err := payload.ParseFrame(line)
		if err != nil {
			rep.Malformed++
			continue
		}
		if frame.Op != payload.OpDispatch || !state.Handles(frame.Type) {
			rep.Skipped++
			continue
		}

		if _, err := gw.Apply(frame.Type, frame.Data); err != nil {
			rep.Rejected++
			if strict {
				return rep, fmt.Errorf("frame %d (seq %d): %w", rep.Frames, frame.Sequence, err)
			}
			continue
		}
		rep.Applied++
	}
	return rep, sc.Err()
}

func printReport(w io.Writer, rep report, stats state.Stats) {
	fmt.Fprintf(w, "frames     %d\n", rep.Frames)
	fmt.Fprintf(w, "applied    %d\n", rep.Applied)
	fmt.Fprintf(w, "skipped    %d\n", rep.Skipped)
	fmt.Fprintf(w, "rejected   %d\n", rep.Rejected)
	fmt.Fprintf(w, "malformed  %d\n", rep.Malformed)
	fmt.Fprintf(w, "guilds     %d joined\n", stats.JoinedGuilds)
	fmt.Fprintf(w, "private    %d channels\n", stats.PrivateChannels)

	kinds := make([]string, 0, len(stats.Entities))
	for kind := range stats.Entities {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "%-10s %d\n", kind, stats.Entities[kind])
	}
}
