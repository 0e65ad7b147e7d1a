package main

import (
	"fmt"
	"sort"

	"github.com/hyperengineering/resonance/internal/snapshot"
	"github.com/hyperengineering/resonance/internal/types"
	"github.com/spf13/cobra"
)

var reflectForce bool

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Run the reflection engine against the session log",
	Long: "Checks the reflection gate and, when enough new sessions have been rated, " +
		"rebuilds the knowledge snapshot. --force ignores the new-session gap but still " +
		"requires the cold-start minimum.",
	Args: cobra.NoArgs,
	RunE: runReflect,
}

func init() {
	reflectCmd.Flags().BoolVar(&reflectForce, "force", false, "Run even if too few new sessions arrived")
	reflectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runReflect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	st, kb, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	completer, _, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	publisher, err := snapshot.New(cfg.Snapshot)
	if err != nil {
		return err
	}
	engine := newReflection(cfg, completer, st, kb, publisher)

	var report *types.ReflectionReport
	if reflectForce {
		report, err = engine.Reflect(ctx)
	} else {
		report, err = engine.MaybeReflect(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, report)
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, report *types.ReflectionReport) {
	out := cmd.OutOrStdout()
	if !report.Ran {
		fmt.Fprintf(out, "Reflection skipped: %s\n", report.Reason)
		return
	}

	fmt.Fprintf(out, "Reflection #%d complete (%d sessions analyzed)\n", report.ReflectionCount, report.EntriesAnalyzed)
	tw := newTabWriter(out)
	for _, name := range sortedKeys(report.Phases) {
		fmt.Fprintf(tw, "  %s\t%s\n", name, report.Phases[name])
	}
	for _, emotion := range sortedKeys(report.Emotions) {
		fmt.Fprintf(tw, "  emotion %s\t%s\n", emotion, report.Emotions[emotion])
	}
	tw.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
