package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/coord"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

var (
	registerWorkspace string
	registerBranch    string
	claimWorkspace    string
	touchStatus       string
	touchMilestone    string
	instancesMS       string
	postMilestone     string
	postPayload       []string
	messagesMS        string
	messagesSince     time.Duration
	messagesLimit     int
)

func init() {
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register this instance in the registry",
		RunE:  runRegister,
	}
	registerCmd.Flags().StringVar(&registerWorkspace, "workspace", "", "workspace path (default: config or cwd)")
	registerCmd.Flags().StringVar(&registerBranch, "branch", "", "branch name")
	rootCmd.AddCommand(registerCmd)

	touchCmd := &cobra.Command{
		Use:   "touch",
		Short: "Refresh this instance's heartbeat and status",
		RunE:  runTouch,
	}
	touchCmd.Flags().StringVar(&touchStatus, "status", string(domain.InstanceActive), "active, idle, busy or stopping")
	touchCmd.Flags().StringVar(&touchMilestone, "milestone", "", "milestone being worked on")
	rootCmd.AddCommand(touchCmd)

	claimCmd := &cobra.Command{
		Use:   "claim MILESTONE UNIT...",
		Short: "Claim units of a milestone",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runClaim,
	}
	claimCmd.Flags().StringVar(&claimWorkspace, "workspace", "", "workspace recorded on the claim")
	rootCmd.AddCommand(claimCmd)

	releaseCmd := &cobra.Command{
		Use:   "release MILESTONE UNIT",
		Short: "Release a unit this instance holds",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
	rootCmd.AddCommand(releaseCmd)

	heartbeatCmd := &cobra.Command{
		Use:   "heartbeat MILESTONE UNIT",
		Short: "Refresh the heartbeat of a held claim",
		Args:  cobra.ExactArgs(2),
		RunE:  runHeartbeat,
	}
	rootCmd.AddCommand(heartbeatCmd)

	reapCmd := &cobra.Command{
		Use:   "reap MILESTONE",
		Short: "Remove stale claims of a milestone",
		Args:  cobra.ExactArgs(1),
		RunE:  runReap,
	}
	rootCmd.AddCommand(reapCmd)

	claimsCmd := &cobra.Command{
		Use:   "claims MILESTONE",
		Short: "List claims of a milestone",
		Args:  cobra.ExactArgs(1),
		RunE:  runClaims,
	}
	rootCmd.AddCommand(claimsCmd)

	releaseAllCmd := &cobra.Command{
		Use:   "release-all",
		Short: "Release every claim this instance holds",
		RunE:  runReleaseAll,
	}
	rootCmd.AddCommand(releaseAllCmd)

	instancesCmd := &cobra.Command{
		Use:   "instances",
		Short: "List active instances",
		RunE:  runInstances,
	}
	instancesCmd.Flags().StringVar(&instancesMS, "milestone", "", "only instances on this milestone")
	rootCmd.AddCommand(instancesCmd)

	postCmd := &cobra.Command{
		Use:   "post TYPE",
		Short: "Post a coordination message",
		Args:  cobra.ExactArgs(1),
		RunE:  runPost,
	}
	postCmd.Flags().StringVar(&postMilestone, "milestone", "", "milestone the message refers to")
	postCmd.Flags().StringArrayVar(&postPayload, "set", nil, "payload entry KEY=VALUE (repeatable)")
	rootCmd.AddCommand(postCmd)

	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent coordination messages, newest first",
		RunE:  runMessages,
	}
	messagesCmd.Flags().StringVar(&messagesMS, "milestone", "", "filter by milestone")
	messagesCmd.Flags().DurationVar(&messagesSince, "since", 0, "only messages newer than this (e.g. 15m)")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", coord.DefaultMessageLimit, "maximum messages")
	rootCmd.AddCommand(messagesCmd)

	activityCmd := &cobra.Command{
		Use:   "activity MILESTONE",
		Short: "Show a milestone's activity log",
		Args:  cobra.ExactArgs(1),
		RunE:  runActivity,
	}
	rootCmd.AddCommand(activityCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	workspace := registerWorkspace
	if workspace == "" {
		workspace = a.cfg.General.Workspace
	}
	if workspace == "" {
		workspace, _ = os.Getwd()
	}
	branch := registerBranch
	if branch == "" {
		branch = a.cfg.General.Branch
	}

	id := a.instanceID()
	if err := a.coord.Register(cmd.Context(), id, workspace, branch); err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

func runTouch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.coord.Touch(cmd.Context(), a.instanceID(), domain.InstanceStatus(touchStatus), touchMilestone)
}

func runClaim(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	workspace := claimWorkspace
	if workspace == "" {
		workspace = a.cfg.General.Workspace
	}
	milestone, units := args[0], args[1:]

	won, err := a.coord.ClaimBatch(cmd.Context(), milestone, units, a.instanceID(), workspace)
	if err != nil {
		return err
	}
	if outputJSON {
		if won == nil {
			won = []string{}
		}
		if err := printJSON(out, map[string]any{"claimed": won}); err != nil {
			return err
		}
	} else {
		held := make(map[string]bool, len(won))
		for _, u := range won {
			held[u] = true
		}
		for _, u := range units {
			if held[u] {
				fmt.Fprintf(out, "claimed  %s\n", u)
			} else {
				fmt.Fprintf(out, "taken    %s\n", u)
			}
		}
	}
	if len(won) == 0 {
		return fmt.Errorf("no units claimed")
	}
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.coord.Release(cmd.Context(), args[0], args[1], a.instanceID())
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	at, err := a.coord.Heartbeat(cmd.Context(), args[0], args[1], a.instanceID())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, at.Format(time.RFC3339))
	return nil
}

func runReap(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reaped, err := a.coord.ReapStale(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		if reaped == nil {
			reaped = []string{}
		}
		return printJSON(out, map[string]any{"reaped": reaped})
	}
	fmt.Fprintf(out, "Reaped %d stale claim(s)\n", len(reaped))
	for _, u := range reaped {
		fmt.Fprintf(out, "  %s\n", u)
	}
	return nil
}

func runClaims(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	claims, err := a.coord.ListClaims(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(out, claims)
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tINSTANCE\tHEARTBEAT AGE\tSTALE")
	for i := range claims {
		c := &claims[i]
		age := c.Age(now)
		stale := ""
		if age > a.coord.StaleThreshold() {
			stale = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.UnitID, c.InstanceID, age.Round(time.Second), stale)
	}
	return w.Flush()
}

func runReleaseAll(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.coord.ReleaseAll(cmd.Context(), a.instanceID())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Released %d claim(s)\n", n)
	return nil
}

func runInstances(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	instances, err := a.coord.ListActive(cmd.Context(), instancesMS)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(out, instances)
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tSTATUS\tMILESTONE\tLAST SEEN\tWORKSPACE")
	for _, in := range instances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", in.InstanceID, in.Status, in.CurrentMilestone,
			now.Sub(in.HeartbeatAt).Round(time.Second), in.Workspace)
	}
	return w.Flush()
}

func runPost(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	payload, err := parsePayload(postPayload)
	if err != nil {
		return err
	}
	return a.coord.PostMessage(cmd.Context(), domain.CoordinationMessage{
		FromInstance: a.instanceID(),
		MilestoneID:  postMilestone,
		Type:         args[0],
		Payload:      payload,
	})
}

func parsePayload(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	payload := make(map[string]any, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid payload entry %q, want KEY=VALUE", e)
		}
		payload[k] = v
	}
	return payload, nil
}

func runMessages(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	q := coord.MessageQuery{Milestone: messagesMS, Limit: messagesLimit}
	if messagesSince > 0 {
		q.Since = time.Now().Add(-messagesSince)
	}
	msgs, err := a.coord.GetMessages(cmd.Context(), q)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(out, msgs)
	}
	for _, m := range msgs {
		printMessage(out, m)
	}
	return nil
}

func printMessage(w io.Writer, m domain.CoordinationMessage) {
	line := fmt.Sprintf("%s  %-12s %-16s", m.Timestamp.Local().Format("2006-01-02 15:04:05"), m.Type, m.FromInstance)
	if m.MilestoneID != "" {
		line += " [" + m.MilestoneID + "]"
	}
	if len(m.Payload) > 0 {
		line += fmt.Sprintf(" %v", m.Payload)
	}
	fmt.Fprintln(w, line)
}

func runActivity(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.coord.Activity(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(out, entries)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tINSTANCE\tUNIT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("15:04:05"), e.Action, e.InstanceID, e.UnitID)
	}
	return w.Flush()
}
