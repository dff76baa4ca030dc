// Package models defines client-side data models used by the PocketLedger CLI.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Collection names the durable record collections kept by the local store.
type Collection string

const (
	CollectionTransactions Collection = "transactions"
	CollectionAccounts     Collection = "accounts"
	CollectionCategories   Collection = "categories"
)

// Valid reports whether c is one of the known record collections.
func (c Collection) Valid() bool {
	switch c {
	case CollectionTransactions, CollectionAccounts, CollectionCategories:
		return true
	}
	return false
}

// TransactionType discriminates money direction.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Transaction is a single money movement. Id is either a server-issued
// identifier or a temporary one (see NewTempID); Synced is true only when the
// server has confirmed this exact state.
type Transaction struct {
	Id          string          `json:"id"`
	AccountId   string          `json:"accountId"`
	CategoryId  string          `json:"categoryId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Synced      bool            `json:"synced"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SignedAmount returns the amount with the sign implied by the type:
// negative for expenses, positive for income.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Account is a money container (wallet, card, savings ...).
type Account struct {
	Id        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Color     string          `json:"color"`
	Icon      string          `json:"icon"`
	Synced    bool            `json:"synced"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Category labels transactions for reporting.
type Category struct {
	Id        string          `json:"id"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	Color     string          `json:"color"`
	Icon      string          `json:"icon"`
	Synced    bool            `json:"synced"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// AnalyticsSummary mirrors the shape served by GET /api/analytics/summary.
// The zero value doubles as the offline placeholder for that endpoint.
type AnalyticsSummary struct {
	TotalIncome    decimal.Decimal `json:"totalIncome"`
	TotalExpense   decimal.Decimal `json:"totalExpense"`
	Balance        decimal.Decimal `json:"balance"`
	MonthlyIncome  decimal.Decimal `json:"monthlyIncome"`
	MonthlyExpense decimal.Decimal `json:"monthlyExpense"`
}
