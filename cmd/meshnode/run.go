package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/meshmac/internal/config"
	"github.com/danmuck/meshmac/internal/mac"
	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mesh"
	"github.com/danmuck/meshmac/internal/observability"
	"github.com/danmuck/meshmac/internal/radio"
	logs "github.com/danmuck/smplog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one mesh node from a config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Radio == config.RadioSim {
			id, err := cfg.Identity()
			if err != nil {
				return err
			}
			_, err = simulate(ctx, append([]addr.Addr{id.Self()}, id.Peers()...), cfg, 0)
			return err
		}
		return runNode(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "meshnode.toml", "node config path")
	rootCmd.AddCommand(runCmd)
}

// runNode drives one station on the UDP channel with its status server.
func runNode(ctx context.Context, cfg config.Node) error {
	tr, err := radio.ListenUDP(cfg.UDP())
	if err != nil {
		return err
	}
	node, err := mac.NewNode(cfg.NodeID, tr, cfg.MAC)
	if err != nil {
		_ = tr.Close()
		return err
	}
	id, err := cfg.Identity()
	if err != nil {
		_ = tr.Close()
		return err
	}
	loop, err := mesh.NewLoop(node, id, mesh.LogIndicator{Node: cfg.NodeID}, cfg.Loop)
	if err != nil {
		_ = tr.Close()
		return err
	}

	var status *observability.StatusServer
	if cfg.StatusAddr != "" {
		status, err = observability.NewStatusServer(cfg.StatusAddr, node, observability.StatusOptions{CorsOrigins: cfg.CorsOrigins})
		if err != nil {
			_ = tr.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return tr.Close()
	})
	if status != nil {
		g.Go(func() error {
			logs.Infof("meshnode.run status server node=%v addr=%s", cfg.NodeID, cfg.StatusAddr)
			return status.Serve(gctx)
		})
	}

	err = g.Wait()
	logs.Infof("meshnode.run final node=%v %s", cfg.NodeID, node.Stats())
	if err != nil {
		return fmt.Errorf("node %v: %w", cfg.NodeID, err)
	}
	return nil
}
