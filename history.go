package bankledger

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type HistoryKind string

const (
	HistoryWithdrawal HistoryKind = "withdrawal"
	HistoryDeposit    HistoryKind = "deposit"
	HistoryTransfer   HistoryKind = "transfer"
)

// HistorySide is one account's role in a money movement along with its
// balance right after the movement was applied.
type HistorySide struct {
	AccountID    snowflake.ID `json:"account_id"`
	BalanceAfter int64        `json:"balance_after"`
}

// History records one committed withdrawal, deposit or transfer.
// A withdrawal populates only Withdrawal, a deposit only Deposit and a
// transfer both. Rows are never updated once inserted.
type History struct {
	ID         snowflake.ID `json:"id"`
	Amount     int64        `json:"amount"`
	Withdrawal *HistorySide `json:"withdrawal,omitempty"`
	Deposit    *HistorySide `json:"deposit,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewHistory builds an unsaved History row. At least one side must be given.
func NewHistory(amount int64, withdrawal, deposit *HistorySide) (*History, error) {
	if withdrawal == nil && deposit == nil {
		return nil, ErrBadRequest{Fields: map[string]string{"history": "no account side populated"}}
	}
	if amount <= 0 {
		return nil, ErrBadRequest{Fields: map[string]string{"amount": "must be greater than zero"}}
	}
	h := &History{Amount: amount}
	if withdrawal != nil {
		w := *withdrawal
		h.Withdrawal = &w
	}
	if deposit != nil {
		d := *deposit
		h.Deposit = &d
	}
	return h, nil
}

func (h History) Kind() HistoryKind {
	switch {
	case h.Withdrawal != nil && h.Deposit != nil:
		return HistoryTransfer
	case h.Withdrawal != nil:
		return HistoryWithdrawal
	default:
		return HistoryDeposit
	}
}

// Valid reports whether the row satisfies the construction contract. Stores
// use it to refuse rows that were not built through NewHistory.
func (h History) Valid() bool {
	return h.Amount > 0 && (h.Withdrawal != nil || h.Deposit != nil)
}

// Involves reports whether the account appears on either side.
func (h History) Involves(accountID snowflake.ID) bool {
	return (h.Withdrawal != nil && h.Withdrawal.AccountID == accountID) ||
		(h.Deposit != nil && h.Deposit.AccountID == accountID)
}

// BalanceAfter returns the post-movement balance recorded for the account and
// whether money left it. ok is false when the account is on neither side.
func (h History) BalanceAfter(accountID snowflake.ID) (balance int64, outgoing bool, ok bool) {
	if h.Withdrawal != nil && h.Withdrawal.AccountID == accountID {
		return h.Withdrawal.BalanceAfter, true, true
	}
	if h.Deposit != nil && h.Deposit.AccountID == accountID {
		return h.Deposit.BalanceAfter, false, true
	}
	return 0, false, false
}
