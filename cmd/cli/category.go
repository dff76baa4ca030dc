package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

var (
	catName string
	catType string
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a category",
	RunE:  runCategoryAdd,
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE:  runCategoryList,
}

func init() {
	categoryAddCmd.Flags().StringVar(&catName, "name", "", "category name (required)")
	categoryAddCmd.Flags().StringVar(&catType, "type", "expense", "income or expense")
	_ = categoryAddCmd.MarkFlagRequired("name")

	categoryCmd.AddCommand(categoryAddCmd)
	categoryCmd.AddCommand(categoryListCmd)
}

func runCategoryAdd(cmd *cobra.Command, args []string) error {
	kind := models.TransactionType(catType)
	if kind != models.TypeIncome && kind != models.TypeExpense {
		return fmt.Errorf("invalid type %q: must be income or expense", catType)
	}

	cat, err := ledger.AddCategory(cmd.Context(), &models.Category{
		Name: catName,
		Type: kind,
	})
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}

	if models.IsTempID(cat.Id) {
		fmt.Printf("Created %s (queued for sync)\n", cat.Id)
	} else {
		fmt.Printf("Created %s\n", cat.Id)
	}
	return nil
}

func runCategoryList(cmd *cobra.Command, args []string) error {
	cats, err := ledger.Store.Categories().GetAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSYNCED")
	for _, c := range cats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", c.Id, c.Name, c.Type, c.Synced)
	}
	return w.Flush()
}
