package main

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/notify"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/watch"
	"github.com/hochfrequenz/claude-swarm-coordinator/tui"
	"github.com/hochfrequenz/claude-swarm-coordinator/web/api"
)

var (
	servePort      int
	watchMilestone string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with live batch events and metrics",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow coordination messages as they are posted (fs store only)",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchMilestone, "milestone", "", "filter by milestone")
	rootCmd.AddCommand(watchCmd)

	topCmd := &cobra.Command{
		Use:   "top MILESTONE",
		Short: "Live dashboard of claims, instances and activity",
		Args:  cobra.ExactArgs(1),
		RunE:  runTop,
	}
	rootCmd.AddCommand(topCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := servePort
	if port == 0 {
		port = a.cfg.Web.Port
	}
	addr := net.JoinHostPort(a.cfg.Web.Host, strconv.Itoa(port))

	server := api.NewServer(a.coord, nil, a.metrics.Handler(), addr, a.logger)
	dispatcher := notify.NewDispatcher(a.sinks(server.Hub()), a.logger)
	defer dispatcher.Wait()
	server.SetExecutor(a.executor(dispatcher))

	fmt.Fprintf(out, "Serving on http://%s\n", addr)
	return server.Start(cmd.Context())
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if backend := strings.ToLower(a.cfg.Store.Backend); backend != "" && backend != store.BackendFS {
		return fmt.Errorf("watch needs the fs store backend, have %q", a.cfg.Store.Backend)
	}
	dir := filepath.Join(a.cfg.Store.Root, store.MessagesPrefix)

	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", dir)
	return watch.Tail(cmd.Context(), dir, a.coord, watchMilestone, func(m domain.CoordinationMessage) {
		if outputJSON {
			_ = printJSON(out, m)
			return
		}
		printMessage(out, m)
	}, a.logger)
}

func runTop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.NewModel(tui.ModelConfig{Source: a.coord, Milestone: args[0]})
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
