package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

var (
	accName     string
	accType     string
	accBalance  string
	accCurrency string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account",
	RunE:  runAccountAdd,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with balances",
	RunE:  runAccountList,
}

func init() {
	accountAddCmd.Flags().StringVar(&accName, "name", "", "account name (required)")
	accountAddCmd.Flags().StringVar(&accType, "type", "checking", "account type (checking, savings, card, cash)")
	accountAddCmd.Flags().StringVar(&accBalance, "balance", "0", "opening balance")
	accountAddCmd.Flags().StringVar(&accCurrency, "currency", "USD", "ISO currency code")
	_ = accountAddCmd.MarkFlagRequired("name")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	balance, err := decimal.NewFromString(accBalance)
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", accBalance, err)
	}

	acc, err := ledger.AddAccount(cmd.Context(), &models.Account{
		Name:     accName,
		Type:     accType,
		Balance:  balance,
		Currency: accCurrency,
	})
	if err != nil {
		return fmt.Errorf("add account: %w", err)
	}

	if models.IsTempID(acc.Id) {
		fmt.Printf("Created %s (queued for sync)\n", acc.Id)
	} else {
		fmt.Printf("Created %s\n", acc.Id)
	}
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	accs, err := ledger.Store.Accounts().GetAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tBALANCE\tCURRENCY\tSYNCED")
	for _, a := range accs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
			a.Id, a.Name, a.Type, a.Balance.StringFixed(2), a.Currency, a.Synced)
	}
	return w.Flush()
}
