package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/transactions"
)

var (
	txAmount      string
	txType        string
	txAccount     string
	txCategory    string
	txDescription string
	txDate        string

	txListAccount string
	txListFrom    string
	txListTo      string
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Manage transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	Long: `Add records a money movement. The transaction appears immediately, even
offline: it is applied locally first and delivered (or queued) afterwards.

Example:
  pocketledger tx add --amount 12.50 --type expense --account acc-1 --category groceries`,
	RunE: runTxAdd,
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	RunE:  runTxList,
}

var txDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledger.RemoveTransaction(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	txAddCmd.Flags().StringVar(&txAmount, "amount", "", "amount, e.g. 12.50 (required)")
	txAddCmd.Flags().StringVar(&txType, "type", "expense", "income or expense")
	txAddCmd.Flags().StringVar(&txAccount, "account", "", "account id (required)")
	txAddCmd.Flags().StringVar(&txCategory, "category", "", "category id")
	txAddCmd.Flags().StringVar(&txDescription, "description", "", "free-form note")
	txAddCmd.Flags().StringVar(&txDate, "date", "", "date as YYYY-MM-DD (default: today)")
	_ = txAddCmd.MarkFlagRequired("amount")
	_ = txAddCmd.MarkFlagRequired("account")

	txListCmd.Flags().StringVar(&txListAccount, "account", "", "filter by account id")
	txListCmd.Flags().StringVar(&txListFrom, "from", "", "start date as YYYY-MM-DD")
	txListCmd.Flags().StringVar(&txListTo, "to", "", "end date as YYYY-MM-DD")

	txCmd.AddCommand(txAddCmd)
	txCmd.AddCommand(txListCmd)
	txCmd.AddCommand(txDeleteCmd)
}

func runTxAdd(cmd *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(txAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", txAmount, err)
	}
	kind := models.TransactionType(txType)
	if kind != models.TypeIncome && kind != models.TypeExpense {
		return fmt.Errorf("invalid type %q: must be income or expense", txType)
	}

	date := time.Now().UTC()
	if txDate != "" {
		if date, err = time.Parse("2006-01-02", txDate); err != nil {
			return fmt.Errorf("invalid date %q: %w", txDate, err)
		}
	}

	tx, err := ledger.AddTransaction(cmd.Context(), &models.Transaction{
		AccountId:   txAccount,
		CategoryId:  txCategory,
		Amount:      amount,
		Type:        kind,
		Description: txDescription,
		Date:        date,
	})
	if err != nil {
		return fmt.Errorf("add transaction: %w", err)
	}

	if models.IsTempID(tx.Id) {
		fmt.Printf("Recorded %s (queued for sync)\n", tx.Id)
	} else {
		fmt.Printf("Recorded %s\n", tx.Id)
	}
	return nil
}

func runTxList(cmd *cobra.Command, args []string) error {
	filter := transactions.Filter{AccountId: txListAccount}
	if txListFrom != "" {
		from, err := time.Parse("2006-01-02", txListFrom)
		if err != nil {
			return fmt.Errorf("invalid --from %q: %w", txListFrom, err)
		}
		filter.From = &from
	}
	if txListTo != "" {
		to, err := time.Parse("2006-01-02", txListTo)
		if err != nil {
			return fmt.Errorf("invalid --to %q: %w", txListTo, err)
		}
		filter.To = &to
	}

	txs, err := ledger.Store.Transactions().GetAll(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tACCOUNT\tCATEGORY\tSYNCED\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%v\t%s\n",
			tx.Id, tx.Date.Format("2006-01-02"), tx.Type, tx.Amount.StringFixed(2),
			tx.AccountId, tx.CategoryId, tx.Synced, tx.Description)
	}
	return w.Flush()
}
