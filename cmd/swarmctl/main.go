package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	instanceFlag string
	outputJSON   bool
	rootCmd      = &cobra.Command{
		Use:   "swarmctl",
		Short: "Swarm coordinator - claims, messages and dependency-wave batches",
		Long: `swarmctl coordinates independent worker instances that share a store.
Workers claim units of a milestone exclusively, heartbeat their claims,
reclaim stale ones, post status messages, and run batches of task groups
in dependency waves against an external execution engine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&instanceFlag, "instance", "", "instance id (default: $SWARM_INSTANCE, then config)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print JSON instead of tables")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
