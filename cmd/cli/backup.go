package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreKey string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage snapshot backups in object storage",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload a snapshot of the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := ledger.BackupService(cmd.Context())
		if err != nil {
			return err
		}
		key, err := svc.Upload(cmd.Context(), ledger.Store)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Printf("Uploaded %s\n", key)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the local store from a snapshot",
	Long:  `Restore replaces the record collections with a stored snapshot. Without --key the latest snapshot is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := ledger.BackupService(cmd.Context())
		if err != nil {
			return err
		}
		if err := svc.Restore(cmd.Context(), ledger.Store, restoreKey); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		fmt.Println("Restored.")
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := ledger.BackupService(cmd.Context())
		if err != nil {
			return err
		}
		keys, err := svc.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		if len(keys) == 0 {
			fmt.Println("No snapshots found.")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	backupRestoreCmd.Flags().StringVar(&restoreKey, "key", "", "snapshot key (default: latest)")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
}
