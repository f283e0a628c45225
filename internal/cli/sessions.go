package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/harun/supportdesk/pkg/conversation"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a conversation's history and task state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run the retention cleanup once",
	Long: `Delete conversations idle longer than sessions.max_age_hours and trim
histories longer than sessions.max_entries.`,
	Args: cobra.NoArgs,
	RunE: runSessionsPrune,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd, sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.sessions.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No conversations stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMESSAGES\tSTATE\tLAST ACTIVE")
	for _, info := range infos {
		state := "-"
		if info.HasState {
			state = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.ID, info.Messages, state, info.LastModified.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	ctx := cmd.Context()
	messages, err := a.sessions.Get(ctx, id)
	if err != nil {
		return err
	}

	state := conversation.New(id)
	found, err := a.sessions.LoadState(ctx, id, state)
	if err != nil {
		return err
	}
	if len(messages) == 0 && !found {
		return fmt.Errorf("conversation %s not found", id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n\n", color.New(color.Bold).Sprint("Conversation"), id)
	for _, msg := range messages {
		fmt.Fprintf(out, "%s %s\n", roleLabel(msg.Role), msg.Content)
	}
	if found {
		writeState(out, state)
	}
	return nil
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return color.CyanString("[user]")
	case "assistant":
		return color.GreenString("[assistant]")
	default:
		return color.HiBlackString("[%s]", role)
	}
}

func writeState(out io.Writer, state *conversation.State) {
	fmt.Fprintf(out, "\n%s phase=%s episode=%d awaiting_input=%t\n",
		color.New(color.Bold).Sprint("State"), state.Phase, state.Episode, state.AwaitingInput)
	if state.Graph == nil || state.Graph.Len() == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tCAPABILITY\tSTATUS\tDESCRIPTION")
	for _, task := range state.Graph.Tasks() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.ID, task.Capability, task.Status, task.Description)
	}
	_ = w.Flush()
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted conversation %s\n", color.GreenString("✓"), args[0])
	return nil
}

func runSessionsPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.cleanup.RunNow(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Cleanup finished: %d deleted, %d trimmed\n", color.GreenString("✓"), len(report.Deleted), len(report.Pruned))
	for _, id := range report.Deleted {
		fmt.Fprintf(out, "  deleted  %s\n", id)
	}
	for _, id := range report.Pruned {
		fmt.Fprintf(out, "  trimmed  %s\n", id)
	}
	return nil
}
