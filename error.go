package bankledger

import (
	"errors"
	"fmt"
)

var (
	ErrInternalServer = errors.New("internal server error")

	// ErrServiceUnavailable is returned when a request is shed by the limit
	// middleware or rejected by an open circuit breaker.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrDataAccess is wrapped by store implementations around constraint and
	// data access failures. Any other store error is treated as unknown.
	ErrDataAccess = errors.New("data access failure")
)

type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}

type ErrNotFound struct {
	Number string `json:"number"`
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("account %q not found", e.Number)
}

type ErrOwnership struct {
	Number string `json:"number"`
}

func (e ErrOwnership) Error() string {
	return fmt.Sprintf("account %q is not owned by caller", e.Number)
}

// ErrAuthorization deliberately reads like a lookup failure so a wrong
// password does not confirm that the account exists.
type ErrAuthorization struct {
	Number string `json:"-"`
}

func (e ErrAuthorization) Error() string {
	return "account not found or invalid credential"
}

type ErrInsufficientFunds struct {
	Number  string `json:"number"`
	Balance int64  `json:"-"`
	Amount  int64  `json:"amount"`
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient balance on account %q for amount %d", e.Number, e.Amount)
}

type PersistenceKind int

const (
	// PersistenceInvalidInput covers constraint/data access failures and
	// writes that did not affect the expected number of rows.
	PersistenceInvalidInput PersistenceKind = iota + 1
	// PersistenceUnavailable covers unknown or transient store failures,
	// cancellation included.
	PersistenceUnavailable
)

func (k PersistenceKind) String() string {
	switch k {
	case PersistenceInvalidInput:
		return "invalid_input"
	case PersistenceUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type ErrPersistence struct {
	Kind PersistenceKind
	Op   string
	Err  error
}

func (e ErrPersistence) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persistence failure (%s) on %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("persistence failure (%s) on %s: %v", e.Kind, e.Op, e.Err)
}

func (e ErrPersistence) Unwrap() error {
	return e.Err
}

// errRowsAffected reports a write that touched an unexpected number of rows.
func errRowsAffected(op string, rows int64) error {
	return ErrPersistence{
		Kind: PersistenceInvalidInput,
		Op:   op,
		Err:  fmt.Errorf("failed processing: %d rows affected, want 1", rows),
	}
}

// classifyStoreErr passes ledger errors through untouched and reclassifies
// everything else a store returned into an ErrPersistence.
func classifyStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isLedgerErr(err) {
		return err
	}
	if errors.Is(err, ErrDataAccess) {
		return ErrPersistence{Kind: PersistenceInvalidInput, Op: op, Err: err}
	}
	return ErrPersistence{Kind: PersistenceUnavailable, Op: op, Err: err}
}

func isLedgerErr(err error) bool {
	var (
		nf  ErrNotFound
		own ErrOwnership
		au  ErrAuthorization
		ins ErrInsufficientFunds
		br  ErrBadRequest
		per ErrPersistence
	)
	return errors.As(err, &nf) ||
		errors.As(err, &own) ||
		errors.As(err, &au) ||
		errors.As(err, &ins) ||
		errors.As(err, &br) ||
		errors.As(err, &per) ||
		errors.Is(err, ErrServiceUnavailable)
}

// ErrorKind returns a stable label for err, used for metrics and response bodies.
func ErrorKind(err error) string {
	var (
		nf  ErrNotFound
		own ErrOwnership
		au  ErrAuthorization
		ins ErrInsufficientFunds
		br  ErrBadRequest
		per ErrPersistence
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &own):
		return "ownership"
	case errors.As(err, &au):
		return "authorization"
	case errors.As(err, &ins):
		return "insufficient_funds"
	case errors.As(err, &br):
		return "invalid_input"
	case errors.As(err, &per):
		return "persistence_" + per.Kind.String()
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

// unavailable reports whether err signals that the store or the service is
// not serving requests, as opposed to a request-level rejection.
func unavailable(err error) bool {
	var per ErrPersistence
	if errors.As(err, &per) && per.Kind == PersistenceUnavailable {
		return true
	}
	return errors.Is(err, ErrServiceUnavailable)
}
