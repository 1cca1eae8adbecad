package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept for every amount.
const AmountScale = 8

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyXLM Currency = "XLM"
)

var SupportedCurrencies = []Currency{CurrencyUSD, CurrencyXLM}

func IsSupportedCurrency(c string) bool {
	for _, supported := range SupportedCurrencies {
		if string(supported) == c {
			return true
		}
	}
	return false
}

type RefType string

const (
	RefTypeContract   RefType = "contract"
	RefTypeEscrow     RefType = "escrow"
	RefTypeWithdrawal RefType = "withdrawal"
	RefTypePayment    RefType = "payment"
	RefTypeFee        RefType = "fee"
)

// FundsReference names the business object a ledger mutation belongs to.
type FundsReference struct {
	ID   string  `json:"id" validate:"required"`
	Type RefType `json:"type" validate:"required,oneof=contract escrow"`
}

func (r FundsReference) Valid() bool {
	if r.ID == "" {
		return false
	}
	return r.Type == RefTypeContract || r.Type == RefTypeEscrow
}

// ValidDebit reports whether r may back a direct debit of available funds.
func (r FundsReference) ValidDebit() bool {
	if r.ID == "" {
		return false
	}
	switch r.Type {
	case RefTypeWithdrawal, RefTypePayment, RefTypeFee:
		return true
	}
	return false
}

type BalanceRecord struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Currency  Currency        `json:"currency" db:"currency"`
	Available decimal.Decimal `json:"available" db:"available"`
	Held      decimal.Decimal `json:"held" db:"held"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

func (b BalanceRecord) Total() decimal.Decimal {
	return b.Available.Add(b.Held)
}

type TransactionType string

const (
	TransactionCredit  TransactionType = "credit"
	TransactionHold    TransactionType = "hold"
	TransactionRelease TransactionType = "release"
	TransactionCapture TransactionType = "capture"
	TransactionSettle  TransactionType = "settle"
	TransactionDebit   TransactionType = "debit"
)

var TransactionTypes = []TransactionType{
	TransactionCredit, TransactionHold, TransactionRelease, TransactionCapture, TransactionSettle, TransactionDebit,
}

func IsTransactionType(t string) bool {
	for _, tt := range TransactionTypes {
		if string(tt) == t {
			return true
		}
	}
	return false
}

// BalanceTransaction is the audit row written alongside every balance mutation.
type BalanceTransaction struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Currency       Currency        `json:"currency" db:"currency"`
	Type           TransactionType `json:"type" db:"type"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	RefID          string          `json:"ref_id" db:"ref_id"`
	RefType        RefType         `json:"ref_type" db:"ref_type"`
	Description    string          `json:"description,omitempty" db:"description"`
	AvailableAfter decimal.Decimal `json:"available_after" db:"available_after"`
	HeldAfter      decimal.Decimal `json:"held_after" db:"held_after"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Settlement is the pair of balances left behind by a settle.
type Settlement struct {
	FromBalance BalanceRecord `json:"from_balance"`
	ToBalance   BalanceRecord `json:"to_balance"`
}

// TransactionFilters narrows a history query. To is an exclusive upper bound.
type TransactionFilters struct {
	Currency string
	Type     string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type TransactionHistory struct {
	Transactions []BalanceTransaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}
