package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/batch"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/notify"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/scheduler"
)

var (
	runDeadline  time.Duration
	scheduleFile string
	scheduleOnce bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run GROUPS_FILE",
		Short: "Execute a batch of task groups in dependency waves",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 0, "overall batch deadline (default from config)")
	rootCmd.AddCommand(runCmd)

	planCmd := &cobra.Command{
		Use:   "plan GROUPS_FILE",
		Short: "Check a groups file and suggest waves",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}
	rootCmd.AddCommand(planCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run batches on their cron schedules",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&scheduleFile, "file", "", "schedule file (default from config)")
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "start due batches once and exit")
	rootCmd.AddCommand(scheduleCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	groups, err := batch.LoadGroups(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, issue := range scheduler.Lint(groups) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", issue)
	}

	dispatcher := notify.NewDispatcher(a.sinks(), a.logger)
	res := a.executor(dispatcher).Execute(cmd.Context(), groups, runDeadline)
	dispatcher.Wait()

	if outputJSON {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		printBatchResult(out, res)
	}
	if res.FailedGroups > 0 {
		return fmt.Errorf("%d of %d group(s) did not complete", res.FailedGroups, res.TotalGroups)
	}
	return nil
}

func printBatchResult(out io.Writer, res *domain.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tSTATUS\tDURATION\tOK/FAIL\tERROR")
	for _, r := range res.Results {
		fmt.Fprintf(w, "%s\t%s\t%dms\t%d/%d\t%s\n", r.GroupID, r.Status, r.DurationMs, r.SuccessCount, r.FailCount, r.Error)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d/%d completed, %d failed", res.CompletedGroups, res.TotalGroups, res.FailedGroups)
	if res.TimedOut {
		fmt.Fprint(out, " (timed out)")
	}
	fmt.Fprintf(out, " in %dms\n", res.DurationMs)

	if len(res.Synthesis) > 0 {
		fmt.Fprintln(out, "\nKey findings:")
		for _, f := range res.Synthesis {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	groups, err := batch.LoadGroups(args[0])
	if err != nil {
		return err
	}

	issues := scheduler.Lint(groups)
	waves, err := scheduler.SuggestWaves(groups)
	if outputJSON {
		report := map[string]any{"issues": issues, "suggested_waves": waves}
		if err != nil {
			report["error"] = err.Error()
		}
		return printJSON(out, report)
	}

	if len(issues) == 0 {
		fmt.Fprintln(out, "No issues found")
	} else {
		fmt.Fprintf(out, "%d issue(s):\n", len(issues))
		for _, is := range issues {
			fmt.Fprintf(out, "  %s\n", is)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tDEPENDS ON\tWAVE\tSUGGESTED")
	for _, g := range groups {
		declared := "-"
		if g.IsDependent() {
			declared = fmt.Sprint(g.EffectiveWave())
		}
		suggested := "-"
		if wave := waves[g.ID]; wave > 0 {
			suggested = fmt.Sprint(wave)
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", g.ID, g.DependsOn, declared, suggested)
	}
	return w.Flush()
}

func runSchedule(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := scheduleFile
	if path == "" {
		path = a.cfg.General.ScheduleFile
	}
	sc, err := batch.LoadScheduleConfig(path)
	if err != nil {
		return err
	}
	if len(sc.Batches) == 0 {
		return fmt.Errorf("no batches configured in %s", path)
	}

	sched, err := batch.NewScheduler(sc.Batches, a.logger)
	if err != nil {
		return err
	}

	quiet := notify.NewDispatcher(notify.NewLogNotifier(a.logger), a.logger)
	loud := notify.NewDispatcher(a.sinks(), a.logger)
	defer quiet.Wait()
	defer loud.Wait()

	run := func(ctx context.Context, bc batch.BatchConfig) error {
		groups, err := batch.LoadGroups(bc.GroupsFile)
		if err != nil {
			return err
		}
		var port notify.Port = quiet
		if bc.NotifyOnComplete {
			port = loud
		}
		res := a.executor(port).Execute(ctx, groups, bc.DeadlineDuration())
		a.logger.Info("scheduled batch finished", zap.String("batch", bc.Name),
			zap.Int("completed", res.CompletedGroups), zap.Int("failed", res.FailedGroups))
		return nil
	}

	for _, name := range sched.ListBatches() {
		fmt.Fprintf(out, "%-20s next run %s\n", name, sched.NextRun(name).Format(time.RFC3339))
	}

	if scheduleOnce {
		started := sched.Tick(cmd.Context(), run)
		sched.Wait()
		fmt.Fprintf(out, "Ran %d batch(es)\n", len(started))
		return nil
	}
	sched.Start(cmd.Context(), run)
	return nil
}
