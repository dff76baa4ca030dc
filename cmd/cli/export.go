package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/client/store"
)

var (
	exportPath string
	importPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the record collections to a JSON file",
	Long: `Export writes a snapshot of transactions, accounts, categories, and
metadata. Pending mutations and cached responses are not included.`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore record collections from a JSON snapshot",
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportPath, "out", "o", "pocketledger-export.json", "output file")
	importCmd.Flags().StringVarP(&importPath, "in", "i", "", "snapshot file (required)")
	_ = importCmd.MarkFlagRequired("in")
}

func runExport(cmd *cobra.Command, args []string) error {
	snap, err := ledger.Store.ExportAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", exportPath, err)
	}
	fmt.Printf("Exported %d transaction(s), %d account(s), %d category(ies) to %s\n",
		len(snap.Transactions), len(snap.Accounts), len(snap.Categories), exportPath)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", importPath, err)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse %s: %w", importPath, err)
	}
	if err := ledger.Store.ImportAll(cmd.Context(), &snap); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("Imported %d transaction(s), %d account(s), %d category(ies)\n",
		len(snap.Transactions), len(snap.Accounts), len(snap.Categories))
	return nil
}
