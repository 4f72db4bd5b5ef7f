package bankledger

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is a single ledger account. Balance is kept in integer currency units.
//
// Withdraw and Deposit are plain arithmetic; callers run the Check* predicates
// first, in the order owner, password, balance.
type Account struct {
	ID        snowflake.ID `json:"id"`
	Number    string       `json:"number"`
	Password  string       `json:"-"`
	Balance   int64        `json:"balance"`
	OwnerID   int64        `json:"owner_id"`
	CreatedAt time.Time    `json:"created_at"`
}

func (a *Account) Withdraw(amount int64) {
	a.Balance -= amount
}

func (a *Account) Deposit(amount int64) {
	a.Balance += amount
}

// CheckPassword compares the candidate against the stored password as-is.
// Credentials are stored in plain form; see DESIGN.md before changing this.
func (a Account) CheckPassword(candidate string) error {
	if candidate != a.Password {
		return ErrAuthorization{Number: a.Number}
	}
	return nil
}

func (a Account) CheckBalance(amount int64) error {
	if a.Balance < amount {
		return ErrInsufficientFunds{
			Number:  a.Number,
			Balance: a.Balance,
			Amount:  amount,
		}
	}
	return nil
}

func (a Account) CheckOwner(callerID int64) error {
	if a.OwnerID != callerID {
		return ErrOwnership{Number: a.Number}
	}
	return nil
}
