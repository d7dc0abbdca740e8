package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"secscan/logger"
	"secscan/models"
)

var (
	scanCode      string
	scanPath      string
	scanRecursive bool
	noStatic      bool
	noLLM         bool
	withValidate  bool
	severityFlag  string
	streamFlag    bool
	outputFormat  string
)

var scanCmd = &cobra.Command{
	Use:   "scan [target]",
	Short: "Scan a snippet, file or directory for security threats",
	Long: `Scan a target for security threats. The target is a file or directory
path; with --code an inline snippet is scanned instead and the target
argument (if given) only names the snippet for language detection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions()
		if err != nil {
			return err
		}

		engine, cleanup := buildEngine()
		defer cleanup()

		// The CLI is the blocking boundary: everything below it is
		// context-driven and cancellable via SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		target := ""
		if len(args) == 1 {
			target = args[0]
		}

		if scanCode != "" {
			path := scanPath
			if path == "" {
				path = target
			}
			if path == "" {
				path = "snippet.txt"
			}
			result, err := engine.ScanCode(ctx, scanCode, path, opts)
			if err != nil {
				return err
			}
			return printResult(result)
		}

		if target == "" {
			return fmt.Errorf("a target path is required unless --code is given")
		}

		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("cannot stat %s: %w", target, err)
		}

		if !info.IsDir() {
			result, err := engine.ScanFile(ctx, target, opts)
			if err != nil {
				return err
			}
			return printResult(result)
		}

		if streamFlag {
			results, err := engine.ScanDirectoryStreaming(ctx, target, scanRecursive, opts)
			if err != nil {
				return err
			}
			failures := 0
			total := 0
			for result := range results {
				total++
				if result.Metadata.Error != "" {
					failures++
				}
				if err := printResult(result); err != nil {
					return err
				}
			}
			logger.Info("streaming scan finished: %d files, %d failed", total, failures)
			return nil
		}

		result, err := engine.ScanDirectory(ctx, target, scanRecursive, opts)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

func buildOptions() (models.ScanOptions, error) {
	opts := models.DefaultScanOptions()
	opts.UseStatic = !noStatic
	opts.UseLLM = !noLLM
	opts.UseValidation = withValidate

	if severityFlag != "" {
		sev, ok := models.ParseSeverity(severityFlag)
		if !ok {
			return opts, fmt.Errorf("unknown severity %q (want low, medium, high or critical)", severityFlag)
		}
		opts.SeverityThreshold = sev
	}
	return opts, nil
}

func printResult(result *models.ScanResult) error {
	if outputFormat == "json" {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("%s: %d threat(s)", result.Target, len(result.Threats))
	if result.Metadata.CacheHit {
		fmt.Print(" [cached]")
	}
	if result.Metadata.Error != "" {
		fmt.Printf(" [error: %s]", result.Metadata.Error)
	}
	fmt.Println()
	for _, t := range result.Threats {
		fmt.Printf("  %-8s %s:%d  %s (%s)\n", t.Severity, t.FilePath, t.LineStart, t.RuleName, t.Category)
	}
	for _, fi := range result.Metadata.FileSummaries {
		if fi.HasIssues {
			fmt.Printf("  - %s: %d issue(s)\n", fi.FilePath, fi.ThreatCount)
		}
	}
	return nil
}

func init() {
	scanCmd.Flags().StringVar(&scanCode, "code", "", "scan an inline code snippet instead of a path")
	scanCmd.Flags().StringVar(&scanPath, "path", "", "virtual path for --code (drives language detection)")
	scanCmd.Flags().BoolVarP(&scanRecursive, "recursive", "r", true, "recurse into subdirectories")
	scanCmd.Flags().BoolVar(&noStatic, "no-static", false, "disable the static analyzer phase")
	scanCmd.Flags().BoolVar(&noLLM, "no-llm", false, "disable the LLM analyzer phase")
	scanCmd.Flags().BoolVar(&withValidate, "validate", false, "run the LLM validation pass over merged findings")
	scanCmd.Flags().StringVar(&severityFlag, "severity", "", "minimum severity to report (low, medium, high, critical)")
	scanCmd.Flags().BoolVar(&streamFlag, "stream", false, "stream per-file results for directory scans")
	scanCmd.Flags().StringVarP(&outputFormat, "output", "o", "summary", "output format (summary, json)")
	rootCmd.AddCommand(scanCmd)
}
