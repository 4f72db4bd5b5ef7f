package bankledger_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/bankledger"
)

func TestRenderStatement(t *testing.T) {
	as := assert.New(t)
	reqrd := require.New(t)
	acct := bankledger.Account{
		ID:      snowflake.ParseInt64(1),
		Number:  "A100",
		Balance: 400,
		OwnerID: 7,
	}
	other := snowflake.ParseInt64(2)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	hist := []bankledger.History{
		{Amount: 100, Deposit: &bankledger.HistorySide{AccountID: acct.ID, BalanceAfter: 600}, CreatedAt: at},
		{
			Amount:     200,
			Withdrawal: &bankledger.HistorySide{AccountID: acct.ID, BalanceAfter: 400},
			Deposit:    &bankledger.HistorySide{AccountID: other, BalanceAfter: 200},
			CreatedAt:  at.Add(time.Hour),
		},
		// belongs to another account and is skipped
		{Amount: 5, Withdrawal: &bankledger.HistorySide{AccountID: other, BalanceAfter: 195}, CreatedAt: at},
	}

	buf := new(bytes.Buffer)
	reqrd.Nil(bankledger.RenderStatement(buf, acct, hist, at.Add(2*time.Hour)))
	as.True(bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	as.True(bytes.Contains(buf.Bytes(), []byte("%%EOF")))

	empty := new(bytes.Buffer)
	reqrd.Nil(bankledger.RenderStatement(empty, acct, nil, at))
	as.True(bytes.HasPrefix(empty.Bytes(), []byte("%PDF-")))
}
