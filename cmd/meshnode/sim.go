package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/meshmac/internal/config"
	"github.com/danmuck/meshmac/internal/mac"
	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mac/stats"
	"github.com/danmuck/meshmac/internal/mesh"
	"github.com/danmuck/meshmac/internal/radio"
	logs "github.com/danmuck/smplog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// simHoldTime mirrors a radio that only keeps the packet it is currently receiving.
const simHoldTime = 50 * time.Millisecond

var (
	simNodes      int
	simDuration   time.Duration
	simSeed       int64
	simConfigPath string
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run an in-process mesh of nodes on a shared simulated channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simNodes < 2 || simNodes > int(addr.MaxUnicast)+1 {
			return fmt.Errorf("nodes must be within [2,%d]", int(addr.MaxUnicast)+1)
		}
		cfg := config.Default()
		if simConfigPath != "" {
			loaded, err := config.Load(simConfigPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		addrs := make([]addr.Addr, simNodes)
		for i := range addrs {
			addrs[i] = addr.Addr(i)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), simDuration)
		defer cancel()
		results, err := simulate(ctx, addrs, cfg, simSeed)
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "node %v %s\n", r.Node, r.Stats)
		}
		return err
	},
}

func init() {
	simCmd.Flags().IntVar(&simNodes, "nodes", 4, "number of stations, addressed 0..n-1")
	simCmd.Flags().DurationVar(&simDuration, "duration", 10*time.Second, "how long to run")
	simCmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed (0 picks one from the clock)")
	simCmd.Flags().StringVar(&simConfigPath, "config", "", "optional config for MAC timeouts and loop settings")
	rootCmd.AddCommand(simCmd)
}

type simResult struct {
	Node  addr.Addr
	Stats stats.Snapshot
}

// simulate runs one control loop per address on a shared Ether until ctx ends
// or a node hits an invariant violation.
func simulate(ctx context.Context, addrs []addr.Addr, cfg config.Node, seed int64) ([]simResult, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logs.Infof("meshnode.sim start nodes=%d seed=%d", len(addrs), seed)

	ether := radio.NewEther()
	ether.SetHoldTime(simHoldTime)
	nodes := make([]*mac.Node, 0, len(addrs))
	loops := make([]*mesh.Loop, 0, len(addrs))
	ports := make([]*radio.Port, 0, len(addrs))
	closeAll := func() {
		for _, p := range ports {
			_ = p.Close()
		}
	}
	for i, a := range addrs {
		port, err := ether.Attach(a)
		if err != nil {
			closeAll()
			return nil, err
		}
		ports = append(ports, port)
		node, err := mac.NewNode(a, port, cfg.MAC)
		if err != nil {
			closeAll()
			return nil, err
		}
		id, err := mesh.NewStaticIdentity(a, addrs)
		if err != nil {
			closeAll()
			return nil, err
		}
		loop, err := mesh.NewLoop(node, id, mesh.LogIndicator{Node: a}, cfg.Loop,
			mesh.WithRand(rand.New(rand.NewSource(seed+int64(i)))))
		if err != nil {
			closeAll()
			return nil, err
		}
		nodes = append(nodes, node)
		loops = append(loops, loop)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range loops {
		loop, port := loops[i], ports[i]
		g.Go(func() error {
			return loop.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			return port.Close()
		})
	}
	err := g.Wait()

	results := make([]simResult, 0, len(nodes))
	for _, n := range nodes {
		snap := n.Stats()
		logs.Infof("meshnode.sim final node=%v %s", n.Self(), snap)
		results = append(results, simResult{Node: n.Self(), Stats: snap})
	}
	return results, err
}
