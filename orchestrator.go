package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fatenhq/authcore/internal/audit"
	"github.com/fatenhq/authcore/internal/metrics"
)

// Orchestrator owns the process-wide session snapshot. It restores the
// session from the credential provider, lazily creates the matching profile
// row, and keeps the snapshot current as the provider reports asynchronous
// session changes.
//
// Snapshot consistency under concurrency is generation-based: every
// account-to-profile resolution takes a fresh generation number, and only a
// resolution still holding the latest generation may publish its result.
// A stale resolution that completes late is discarded rather than applied.
type Orchestrator struct {
	config   Config
	creds    CredentialStore
	profiles ProfileStore
	prereg   PreRegistry
	audit    *audit.Dispatcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu      sync.Mutex
	account *Account
	profile *Profile
	loading bool

	resolveGen  atomic.Uint64
	closed      atomic.Bool
	unsubscribe func()

	sleep func(ctx context.Context, d time.Duration) error
}

func newOrchestrator(
	cfg Config,
	creds CredentialStore,
	profiles ProfileStore,
	prereg PreRegistry,
	auditDispatcher *audit.Dispatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		creds:    creds,
		profiles: profiles,
		prereg:   prereg,
		audit:    auditDispatcher,
		metrics:  m,
		logger:   logger,
		loading:  true,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns a point-in-time copy of the cached session. The copy is
// safe to retain; later orchestrator updates never mutate it.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Session{Loading: o.loading}
	if o.account != nil {
		account := *o.account
		snap.Account = &account
	}
	if o.profile != nil {
		profile := *o.profile
		snap.Profile = &profile
	}
	return snap
}

// Initialize restores the session from the credential provider and
// subscribes to its change notifications. It must be called once before the
// snapshot is meaningful; until it completes the session reports Loading.
//
// Loading clears on every path, including failure. A restore error leaves
// the session anonymous rather than stuck in the loading state.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}

	o.mu.Lock()
	if o.unsubscribe == nil {
		o.unsubscribe = o.creds.OnSessionChange(o.handleSessionEvent)
	}
	o.mu.Unlock()

	gen := o.beginResolution()

	account, err := o.creds.CurrentSession(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("session restore failed")
		o.applyResolution(gen, nil, nil)
		return fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}

	if account == nil {
		o.applyResolution(gen, nil, nil)
		return nil
	}

	profile, err := o.resolveProfile(ctx, account)
	if err != nil {
		// The account is still applied so the caller knows who is signed
		// in; the guard treats a missing profile as anonymous.
		o.logger.Error().Err(err).Str("account_id", account.ID).Msg("profile resolution failed during restore")
		o.applyResolution(gen, account, nil)
		return err
	}

	o.applyResolution(gen, account, profile)
	o.metrics.Inc(metrics.MetricSessionRestored)
	emitAudit(ctx, o.audit, auditEventSessionRestored, true, account.ID, nil, nil)
	return nil
}

// SignUp creates a new account with the credential provider, then waits the
// configured provision delay and polls the profile row exactly once.
// Provisioning is asynchronous and external, so an absent row after the
// single poll is reported as ErrProfileNotFound, which callers may treat as
// retryable.
func (o *Orchestrator) SignUp(ctx context.Context, email, password, fullName string) error {
	if o.closed.Load() {
		return ErrClosed
	}

	account, err := o.creds.SignUp(ctx, email, password, SignUpMetadata{FullName: fullName})
	if err != nil {
		o.metrics.Inc(metrics.MetricSignUpRejected)
		emitAudit(ctx, o.audit, auditEventSignUpRejected, false, "", err, nil)
		return err
	}

	if err := o.sleep(ctx, o.config.SignUp.ProvisionWait); err != nil {
		return err
	}

	profile, err := o.profiles.SelectByID(ctx, account.ID)
	if err != nil {
		o.metrics.Inc(metrics.MetricSignUpProfileMissing)
		emitAudit(ctx, o.audit, auditEventSignUpRejected, false, account.ID, ErrStoreRead, nil)
		return fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	if profile == nil {
		o.metrics.Inc(metrics.MetricSignUpProfileMissing)
		emitAudit(ctx, o.audit, auditEventSignUpRejected, false, account.ID, ErrProfileNotFound, nil)
		return ErrProfileNotFound
	}

	o.metrics.Inc(metrics.MetricSignUpSuccess)
	emitAudit(ctx, o.audit, auditEventSignUpSuccess, true, account.ID, nil, nil)
	return nil
}

// SignIn authenticates with the credential provider and resolves the
// profile inline, creating it when missing. The resolved profile is
// returned so the caller can route immediately without waiting for the
// snapshot to settle.
func (o *Orchestrator) SignIn(ctx context.Context, email, password string) (*Profile, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}

	account, err := o.creds.SignInWithPassword(ctx, email, password)
	if err != nil {
		o.metrics.Inc(metrics.MetricSignInFailure)
		emitAudit(ctx, o.audit, auditEventSignInFailure, false, "", err, nil)
		return nil, err
	}

	gen := o.beginResolution()

	profile, err := o.resolveProfile(ctx, account)
	if err != nil {
		o.logger.Error().Err(err).Str("account_id", account.ID).Msg("profile resolution failed during sign-in")
		o.applyResolution(gen, account, nil)
		o.metrics.Inc(metrics.MetricSignInFailure)
		emitAudit(ctx, o.audit, auditEventSignInFailure, false, account.ID, err, nil)
		return nil, err
	}

	o.applyResolution(gen, account, profile)
	o.metrics.Inc(metrics.MetricSignInSuccess)
	emitAudit(ctx, o.audit, auditEventSignInSuccess, true, account.ID, nil, nil)
	return profile, nil
}

// SignOut ends the provider session and then clears the cached snapshot.
// The order is deliberate: if the provider call fails the snapshot is left
// intact, so the caller never observes a locally signed-out session that the
// provider still considers live.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}

	o.mu.Lock()
	accountID := ""
	if o.account != nil {
		accountID = o.account.ID
	}
	o.mu.Unlock()

	if err := o.creds.SignOut(ctx); err != nil {
		o.metrics.Inc(metrics.MetricSignOutFailure)
		emitAudit(ctx, o.audit, auditEventSignOutFailure, false, accountID, err, nil)
		return err
	}

	gen := o.beginResolution()
	o.applyResolution(gen, nil, nil)

	o.metrics.Inc(metrics.MetricSignOutSuccess)
	emitAudit(ctx, o.audit, auditEventSignOutSuccess, true, accountID, nil, nil)
	return nil
}

// RefreshProfile re-reads the profile row for the signed-in account and
// replaces the cached copy. It is a no-op when no account is signed in. On a
// read failure the previously cached profile is kept and the error returned.
func (o *Orchestrator) RefreshProfile(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}

	o.mu.Lock()
	account := o.account
	o.mu.Unlock()

	if account == nil {
		return nil
	}

	profile, err := o.profiles.SelectByID(ctx, account.ID)
	if err != nil {
		o.logger.Error().Err(err).Str("account_id", account.ID).Msg("profile refresh failed")
		return fmt.Errorf("%w: %v", ErrStoreRead, err)
	}

	o.mu.Lock()
	if !o.closed.Load() && o.account != nil && o.account.ID == account.ID {
		o.profile = profile
	}
	o.mu.Unlock()

	o.metrics.Inc(metrics.MetricProfileRefreshed)
	emitAudit(ctx, o.audit, auditEventProfileRefreshed, true, account.ID, nil, nil)
	return nil
}

// Close detaches the orchestrator from the credential provider and
// suppresses any resolution still in flight. The cached snapshot is frozen
// as-is; operations after Close return ErrClosed.
func (o *Orchestrator) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}

	o.mu.Lock()
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

/*
====================================
EVENT HANDLING
====================================
*/

func (o *Orchestrator) handleSessionEvent(event SessionEvent) {
	if o.closed.Load() {
		o.metrics.Inc(metrics.MetricSessionEventDiscarded)
		return
	}

	ctx := context.Background()

	switch event.Type {
	case SessionSignedOut:
		gen := o.beginResolution()
		if o.applyResolution(gen, nil, nil) {
			o.metrics.Inc(metrics.MetricSessionEventApplied)
			emitAudit(ctx, o.audit, auditEventSessionEnded, true, "", nil, nil)
		}

	case SessionTokenRefreshed:
		// A refreshed token carries the same identity, so the profile and
		// the resolution generation are left alone.
		if event.Account == nil {
			o.metrics.Inc(metrics.MetricSessionEventDiscarded)
			return
		}
		o.mu.Lock()
		if o.closed.Load() {
			o.mu.Unlock()
			o.metrics.Inc(metrics.MetricSessionEventDiscarded)
			return
		}
		account := *event.Account
		o.account = &account
		o.mu.Unlock()
		o.metrics.Inc(metrics.MetricSessionEventApplied)

	case SessionSignedIn:
		if event.Account == nil {
			o.metrics.Inc(metrics.MetricSessionEventDiscarded)
			return
		}

		gen := o.beginResolution()

		profile, err := o.resolveProfile(ctx, event.Account)
		if err != nil {
			o.logger.Error().Err(err).Str("account_id", event.Account.ID).Msg("profile resolution failed for session event")
		}

		if o.applyResolution(gen, event.Account, profile) {
			o.metrics.Inc(metrics.MetricSessionEventApplied)
			emitAudit(ctx, o.audit, auditEventSignInSuccess, err == nil, event.Account.ID, err, nil)
		}

	default:
		o.metrics.Inc(metrics.MetricSessionEventDiscarded)
	}
}

/*
====================================
RESOLUTION
====================================
*/

func (o *Orchestrator) beginResolution() uint64 {
	return o.resolveGen.Add(1)
}

// applyResolution publishes a resolved (account, profile) pair into the
// snapshot and clears Loading, provided gen is still the latest generation
// and the orchestrator is still open. It reports whether the result was
// applied.
func (o *Orchestrator) applyResolution(gen uint64, account *Account, profile *Profile) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() || gen != o.resolveGen.Load() {
		o.metrics.Inc(metrics.MetricSessionEventDiscarded)
		return false
	}

	o.account = account
	o.profile = profile
	o.loading = false
	return true
}

// resolveProfile loads the profile row for an account, creating it when
// absent. Creation consults the pre-registration table first: a staged row
// for the account's email supplies the role and full name and is consumed.
// An insert losing the creation race falls back to re-selecting the row the
// winner wrote.
func (o *Orchestrator) resolveProfile(ctx context.Context, account *Account) (*Profile, error) {
	profile, err := o.profiles.SelectByID(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	if profile != nil {
		return profile, nil
	}

	insert := ProfileInsert{
		ID:       account.ID,
		Email:    account.Email,
		FullName: account.FullName,
		Role:     o.config.Account.DefaultRole,
		Status:   o.config.Account.DefaultStatus,
		Verified: false,
	}

	var staged *PreRegistration
	if o.prereg != nil {
		staged, err = o.prereg.LookupUnused(ctx, account.Email)
		if err != nil {
			o.logger.Warn().Err(err).Str("email", account.Email).Msg("pre-registration lookup failed, using defaults")
			staged = nil
		}
		if staged != nil {
			insert.Role = staged.Role
			if staged.FullName != "" {
				insert.FullName = staged.FullName
			}
		}
	}

	created, err := o.profiles.Insert(ctx, insert)
	if err != nil {
		if errors.Is(err, ErrProfileExists) {
			existing, selErr := o.profiles.SelectByID(ctx, account.ID)
			if selErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreRead, selErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		o.metrics.Inc(metrics.MetricProfileCreateFailed)
		emitAudit(ctx, o.audit, auditEventProfileCreateFailed, false, account.ID, ErrStoreWrite, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	if staged != nil {
		if err := o.prereg.MarkUsed(ctx, staged.ID); err != nil {
			o.logger.Warn().Err(err).Str("email", account.Email).Msg("failed to mark pre-registration used")
		}
	}

	o.metrics.Inc(metrics.MetricProfileCreated)
	emitAudit(ctx, o.audit, auditEventProfileCreated, true, account.ID, nil, func() map[string]string {
		return map[string]string{"role": created.Role.String()}
	})
	return created, nil
}
