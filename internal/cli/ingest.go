package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index support playbooks for retrieval",
	Long: `Scan the playbook directory for markdown files and (re)index changed
sections. Files removed from the directory are pruned from the index.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "playbook directory (overrides config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{Console: true, Playbook: true, PlaybookDir: ingestDir})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.playbook.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("playbook sync failed: %w", err)
	}

	out := cmd.OutOrStdout()
	status := a.playbook.Status()
	fmt.Fprintf(out, "%s Indexed playbooks from %s\n", color.GreenString("✓"), a.cfg.Playbook.Dir)
	fmt.Fprintf(out, "  files indexed:  %d\n", report.Indexed)
	fmt.Fprintf(out, "  files skipped:  %d\n", report.Skipped)
	fmt.Fprintf(out, "  files pruned:   %d\n", report.Pruned)
	fmt.Fprintf(out, "  sections:       %d\n", report.Sections)
	fmt.Fprintf(out, "  index total:    %d files, %d sections\n", status.Files, status.Sections)
	return nil
}
