package bankledger

import (
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var (
	MigrateURL = migrateURL
	PgErr      = pgErr
)

func NewPgTx(tx pgx.Tx, log *zerolog.Logger) Tx {
	return &pgTx{tx: tx, log: log}
}
