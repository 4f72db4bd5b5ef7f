package bankledger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// LocalHelper prepares a database for local runs and integration tests.
type LocalHelper struct {
	ConnStr string
	Log     *zerolog.Logger
}

func NewLocalHelper(cfg *Config, log *zerolog.Logger) (*LocalHelper, error) {
	if cfg.Database.ConnectionString == "" {
		return nil, ErrBadRequest{Fields: map[string]string{"database.conn_str": "required"}}
	}
	return &LocalHelper{
		ConnStr: cfg.Database.ConnectionString,
		Log:     log,
	}, nil
}

// InitDB migrates the schema up and returns a func that migrates it back down.
func (lh *LocalHelper) InitDB() (func(), error) {
	if err := RunMigrations(lh.ConnStr, lh.Log); err != nil {
		return nil, err
	}
	return lh.teardownDB(), nil
}

// PrepareAccounts creates the seed accounts through svc. Accounts whose
// number already exists are skipped so the seeder can be rerun.
func (lh *LocalHelper) PrepareAccounts(ctx context.Context, svc Service, seeds []SeedAccount) error {
	for _, sa := range seeds {
		req := CreateAccountReq{
			Number:   sa.Number,
			Password: sa.Password,
			Balance:  sa.Balance,
		}
		_, err := svc.CreateAccount(ctx, req, sa.OwnerID)
		var per ErrPersistence
		switch {
		case err == nil:
			lh.Log.Info().Str("account", sa.Number).Msg("seed account created")
		case errors.As(err, &per) && per.Kind == PersistenceInvalidInput:
			lh.Log.Warn().Err(err).Str("account", sa.Number).Msg("seed account skipped")
		default:
			return fmt.Errorf("seed account %q: %w", sa.Number, err)
		}
	}
	return nil
}

func (lh *LocalHelper) teardownDB() func() {
	return func() {
		if err := DropMigrations(lh.ConnStr, lh.Log); err != nil {
			fmt.Fprintf(os.Stderr, "DB cleanup migrate down: %s", err.Error())
		}
	}
}
