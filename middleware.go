package bankledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

var (
	_ Service = (*validationMiddleware)(nil)
)

type Middleware func(Service) Service

// Chain wraps svc so that the first middleware given is the outermost.
func Chain(svc Service, mws ...Middleware) Service {
	for i := len(mws) - 1; i >= 0; i-- {
		svc = mws[i](svc)
	}
	return svc
}

// validationMiddleware rejects structurally invalid requests before they
// reach the core. The core re-checks amounts on its own.
type validationMiddleware struct {
	next     Service
	validate *validator.Validate
}

func NewValidationMiddleware() Middleware {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return func(svc Service) Service {
		return &validationMiddleware{
			next:     svc,
			validate: validate,
		}
	}
}

func (v *validationMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq, ownerID int64) (*Account, error) {
	if err := v.check(req, ownerID); err != nil {
		return nil, err
	}
	return v.next.CreateAccount(ctx, req, ownerID)
}

func (v *validationMiddleware) ReadAccountsByOwner(ctx context.Context, ownerID int64) ([]Account, error) {
	if ownerID <= 0 {
		return nil, ErrBadRequest{Fields: map[string]string{"caller": "missing or invalid"}}
	}
	return v.next.ReadAccountsByOwner(ctx, ownerID)
}

func (v *validationMiddleware) Withdraw(ctx context.Context, req WithdrawReq, callerID int64) (*History, error) {
	if err := v.check(req, callerID); err != nil {
		return nil, err
	}
	return v.next.Withdraw(ctx, req, callerID)
}

func (v *validationMiddleware) Deposit(ctx context.Context, req DepositReq, callerID int64) (*History, error) {
	if err := v.check(req, callerID); err != nil {
		return nil, err
	}
	return v.next.Deposit(ctx, req, callerID)
}

func (v *validationMiddleware) Transfer(ctx context.Context, req TransferReq, callerID int64) (*History, error) {
	if err := v.check(req, callerID); err != nil {
		return nil, err
	}
	return v.next.Transfer(ctx, req, callerID)
}

func (v *validationMiddleware) Statement(ctx context.Context, w io.Writer, req StatementReq, callerID int64) error {
	if err := v.check(req, callerID); err != nil {
		return err
	}
	return v.next.Statement(ctx, w, req, callerID)
}

func (v *validationMiddleware) check(req any, callerID int64) error {
	fields := map[string]string{}
	if callerID <= 0 {
		fields["caller"] = "missing or invalid"
	}
	if err := v.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = validationMessage(fe)
		}
	}
	if len(fields) > 0 {
		return ErrBadRequest{Fields: fields}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "nefield":
		return "must differ from " + strings.ToLower(fe.Param())
	default:
		return "invalid"
	}
}

//
// Rate limiting middlewares
//

// limitMiddleware limits the number of in-flight requests to the service by using
// a weighted semaphore, i.e., x/sync/semaphore.Semaphore with an acquisition timeout.
// As limits are static and servers may be deployed to a heterogeneous set of machines,
// hence, having to manually tune limits for each server, this solution is something
// likely implemented very differently in a real-world application, but it is a good
// example of load shedding.
type limitMiddleware struct {
	next   Service
	limits *ServiceLimits
}

var (
	_ Service = (*limitMiddleware)(nil)
)

type ServiceLimits struct {
	CreateAccount *semaphore.Weighted
	ReadAccounts  *semaphore.Weighted
	Withdraw      *semaphore.Weighted
	Deposit       *semaphore.Weighted
	Transfer      *semaphore.Weighted
	Statement     *semaphore.Weighted
	// AcquireTimeout bounds how long a request waits for a slot.
	AcquireTimeout time.Duration
}

// NewServiceLimits gives every operation its own semaphore of size inFlight.
func NewServiceLimits(inFlight int64, acquireTimeout time.Duration) *ServiceLimits {
	return &ServiceLimits{
		CreateAccount:  semaphore.NewWeighted(inFlight),
		ReadAccounts:   semaphore.NewWeighted(inFlight),
		Withdraw:       semaphore.NewWeighted(inFlight),
		Deposit:        semaphore.NewWeighted(inFlight),
		Transfer:       semaphore.NewWeighted(inFlight),
		Statement:      semaphore.NewWeighted(inFlight),
		AcquireTimeout: acquireTimeout,
	}
}

func NewLimitMiddleware(limits *ServiceLimits) Middleware {
	return func(next Service) Service {
		return &limitMiddleware{
			next:   next,
			limits: limits,
		}
	}
}

func (l *limitMiddleware) acquire(ctx context.Context, sem *semaphore.Weighted) (func(), error) {
	actx := ctx
	if l.limits.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, l.limits.AcquireTimeout)
		defer cancel()
	}
	if err := sem.Acquire(actx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return func() { sem.Release(1) }, nil
}

func (l *limitMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq, ownerID int64) (*Account, error) {
	release, err := l.acquire(ctx, l.limits.CreateAccount)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.CreateAccount(ctx, req, ownerID)
}

func (l *limitMiddleware) ReadAccountsByOwner(ctx context.Context, ownerID int64) ([]Account, error) {
	release, err := l.acquire(ctx, l.limits.ReadAccounts)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.ReadAccountsByOwner(ctx, ownerID)
}

func (l *limitMiddleware) Withdraw(ctx context.Context, req WithdrawReq, callerID int64) (*History, error) {
	release, err := l.acquire(ctx, l.limits.Withdraw)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Withdraw(ctx, req, callerID)
}

func (l *limitMiddleware) Deposit(ctx context.Context, req DepositReq, callerID int64) (*History, error) {
	release, err := l.acquire(ctx, l.limits.Deposit)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Deposit(ctx, req, callerID)
}

func (l *limitMiddleware) Transfer(ctx context.Context, req TransferReq, callerID int64) (*History, error) {
	release, err := l.acquire(ctx, l.limits.Transfer)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Transfer(ctx, req, callerID)
}

func (l *limitMiddleware) Statement(ctx context.Context, w io.Writer, req StatementReq, callerID int64) error {
	release, err := l.acquire(ctx, l.limits.Statement)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Statement(ctx, w, req, callerID)
}

type ServiceBreaker struct {
	CreateAccount *gobreaker.TwoStepCircuitBreaker[*Account]
	ReadAccounts  *gobreaker.TwoStepCircuitBreaker[[]Account]
	Withdraw      *gobreaker.TwoStepCircuitBreaker[*History]
	Deposit       *gobreaker.TwoStepCircuitBreaker[*History]
	Transfer      *gobreaker.TwoStepCircuitBreaker[*History]
	Statement     *gobreaker.TwoStepCircuitBreaker[interface{}]
}

// NewServiceBreaker builds one breaker per operation from the same settings,
// naming each after its operation.
func NewServiceBreaker(st gobreaker.Settings) *ServiceBreaker {
	named := func(name string) gobreaker.Settings {
		s := st
		s.Name = name
		return s
	}
	return &ServiceBreaker{
		CreateAccount: gobreaker.NewTwoStepCircuitBreaker[*Account](named("create_account")),
		ReadAccounts:  gobreaker.NewTwoStepCircuitBreaker[[]Account](named("read_accounts")),
		Withdraw:      gobreaker.NewTwoStepCircuitBreaker[*History](named("withdraw")),
		Deposit:       gobreaker.NewTwoStepCircuitBreaker[*History](named("deposit")),
		Transfer:      gobreaker.NewTwoStepCircuitBreaker[*History](named("transfer")),
		Statement:     gobreaker.NewTwoStepCircuitBreaker[interface{}](named("statement")),
	}
}

// circuitBreakMiddleware is a middleware that implements the circuit breaker pattern.
// It works in conjunction with limitMiddleware to limit the number of in-flight
// requests to the service when the circuit is not in `closed` state, i.e., the service
// is experiencing heavy load and is struggling to release tokens from the limit
// semaphores within request deadline. Only unavailability counts as a failure;
// domain rejections such as insufficient funds leave the breaker alone.
type circuitBreakMiddleware struct {
	next  Service
	brkrs *ServiceBreaker
}

var (
	_ Service = (*circuitBreakMiddleware)(nil)
)

func NewCircuitBreakMiddleware(brkrs *ServiceBreaker) Middleware {
	return func(next Service) Service {
		return &circuitBreakMiddleware{
			next:  next,
			brkrs: brkrs,
		}
	}
}

func breakerErr(err error) error {
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

func (c *circuitBreakMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq, ownerID int64) (*Account, error) {
	done, err := c.brkrs.CreateAccount.Allow()
	if err != nil {
		return nil, breakerErr(err)
	}
	acct, err := c.next.CreateAccount(ctx, req, ownerID)
	done(!unavailable(err))
	return acct, err
}

func (c *circuitBreakMiddleware) ReadAccountsByOwner(ctx context.Context, ownerID int64) ([]Account, error) {
	done, err := c.brkrs.ReadAccounts.Allow()
	if err != nil {
		return nil, breakerErr(err)
	}
	accts, err := c.next.ReadAccountsByOwner(ctx, ownerID)
	done(!unavailable(err))
	return accts, err
}

func (c *circuitBreakMiddleware) Withdraw(ctx context.Context, req WithdrawReq, callerID int64) (*History, error) {
	done, err := c.brkrs.Withdraw.Allow()
	if err != nil {
		return nil, breakerErr(err)
	}
	hist, err := c.next.Withdraw(ctx, req, callerID)
	done(!unavailable(err))
	return hist, err
}

func (c *circuitBreakMiddleware) Deposit(ctx context.Context, req DepositReq, callerID int64) (*History, error) {
	done, err := c.brkrs.Deposit.Allow()
	if err != nil {
		return nil, breakerErr(err)
	}
	hist, err := c.next.Deposit(ctx, req, callerID)
	done(!unavailable(err))
	return hist, err
}

func (c *circuitBreakMiddleware) Transfer(ctx context.Context, req TransferReq, callerID int64) (*History, error) {
	done, err := c.brkrs.Transfer.Allow()
	if err != nil {
		return nil, breakerErr(err)
	}
	hist, err := c.next.Transfer(ctx, req, callerID)
	done(!unavailable(err))
	return hist, err
}

func (c *circuitBreakMiddleware) Statement(ctx context.Context, w io.Writer, req StatementReq, callerID int64) error {
	done, err := c.brkrs.Statement.Allow()
	if err != nil {
		return breakerErr(err)
	}
	err = c.next.Statement(ctx, w, req, callerID)
	done(!unavailable(err))
	return err
}

//
// Instrumentation
//

type ServiceMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	f := promauto.With(reg)
	return &ServiceMetrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankledger",
				Name:      "operations_total",
				Help:      "Ledger operations by outcome kind.",
			},
			[]string{"op", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bankledger",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger operations in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op"},
		),
	}
}

// Requests exposes the per-outcome counter, mainly for tests.
func (m *ServiceMetrics) Requests() *prometheus.CounterVec {
	return m.requests
}

func (m *ServiceMetrics) observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.requests.WithLabelValues(op, ErrorKind(err)).Inc()
}

type metricsMiddleware struct {
	next    Service
	metrics *ServiceMetrics
}

var (
	_ Service = (*metricsMiddleware)(nil)
)

func NewMetricsMiddleware(metrics *ServiceMetrics) Middleware {
	return func(next Service) Service {
		return &metricsMiddleware{
			next:    next,
			metrics: metrics,
		}
	}
}

func (m *metricsMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq, ownerID int64) (*Account, error) {
	start := time.Now()
	acct, err := m.next.CreateAccount(ctx, req, ownerID)
	m.metrics.observe("create_account", start, err)
	return acct, err
}

func (m *metricsMiddleware) ReadAccountsByOwner(ctx context.Context, ownerID int64) ([]Account, error) {
	start := time.Now()
	accts, err := m.next.ReadAccountsByOwner(ctx, ownerID)
	m.metrics.observe("read_accounts", start, err)
	return accts, err
}

func (m *metricsMiddleware) Withdraw(ctx context.Context, req WithdrawReq, callerID int64) (*History, error) {
	start := time.Now()
	hist, err := m.next.Withdraw(ctx, req, callerID)
	m.metrics.observe("withdraw", start, err)
	return hist, err
}

func (m *metricsMiddleware) Deposit(ctx context.Context, req DepositReq, callerID int64) (*History, error) {
	start := time.Now()
	hist, err := m.next.Deposit(ctx, req, callerID)
	m.metrics.observe("deposit", start, err)
	return hist, err
}

func (m *metricsMiddleware) Transfer(ctx context.Context, req TransferReq, callerID int64) (*History, error) {
	start := time.Now()
	hist, err := m.next.Transfer(ctx, req, callerID)
	m.metrics.observe("transfer", start, err)
	return hist, err
}

func (m *metricsMiddleware) Statement(ctx context.Context, w io.Writer, req StatementReq, callerID int64) error {
	start := time.Now()
	err := m.next.Statement(ctx, w, req, callerID)
	m.metrics.observe("statement", start, err)
	return err
}
