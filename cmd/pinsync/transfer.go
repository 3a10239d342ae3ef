package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/transfer"
	"github.com/pinsync/pinsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Export collections and pins",
	Long: `Export every collection and pin, as JSONL (one record per line) or YAML.
Without -o the export is written to stdout.

  pinsync export -o pins.jsonl
  pinsync export --format yaml > pins.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")
		formatStr, _ := cmd.Flags().GetString("format")

		format := transfer.FormatJSONL
		switch {
		case formatStr != "":
			f, err := transfer.ParseFormat(formatStr)
			if err != nil {
				fatal("%v", err)
			}
			format = f
		case output != "":
			format = transfer.FormatFromPath(output)
		}

		s := openStore(ctx)
		defer s.Close()

		if output == "" {
			if _, err := transfer.Export(ctx, s, os.Stdout, format); err != nil {
				fatal("%v", err)
			}
			return
		}

		res, err := transfer.ExportFile(ctx, s, output, format)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		fmt.Printf("%s Exported %s and %s to %s\n", ui.RenderPass("✓"),
			ui.Plural(res.Collections, "collection"), ui.Plural(res.Pins, "pin"), output)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Import collections and pins",
	Long: `Import collections and pins from a JSONL or YAML export. Records whose
id already exists are skipped, never overwritten.

  pinsync import pins.jsonl --dry-run
  pinsync import pins.yaml --backup`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")
		formatStr, _ := cmd.Flags().GetString("format")

		opts := transfer.ImportOptions{From: args[0], DryRun: dryRun, Backup: backup}
		if formatStr != "" {
			f, err := transfer.ParseFormat(formatStr)
			if err != nil {
				fatal("%v", err)
			}
			opts.Format = f
		}

		s := openStore(ctx)
		defer s.Close()

		res, err := transfer.Import(ctx, s, opts)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %s and %s (%d skipped)\n", ui.RenderPass("✓"), verb,
			ui.Plural(res.CollectionsAdded, "collection"), ui.Plural(res.PinsAdded, "pin"), res.Skipped)
		if res.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", res.BackupCreated)
		}
		for _, e := range res.Errors {
			fmt.Printf("   %s %s\n", ui.RenderFail("✗"), e)
		}
		if len(res.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().String("format", "", "jsonl or yaml (default: from the file extension, else jsonl)")

	importCmd.Flags().Bool("dry-run", false, "Show what would be imported without writing")
	importCmd.Flags().Bool("backup", false, "Back up the database before importing")
	importCmd.Flags().String("format", "", "jsonl or yaml (default: from the file extension)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
