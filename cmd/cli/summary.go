package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show income, expense, and balance aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := ledger.Summary(cmd.Context())
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		fmt.Printf("Balance:          %s\n", s.Balance.StringFixed(2))
		fmt.Printf("Total income:     %s\n", s.TotalIncome.StringFixed(2))
		fmt.Printf("Total expense:    %s\n", s.TotalExpense.StringFixed(2))
		fmt.Printf("Monthly income:   %s\n", s.MonthlyIncome.StringFixed(2))
		fmt.Printf("Monthly expense:  %s\n", s.MonthlyExpense.StringFixed(2))
		return nil
	},
}
