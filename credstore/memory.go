package credstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fatenhq/authcore"
)

// Memory is an in-memory CredentialStore for tests and local development.
// It keeps a password table and a single session slot, and fans session
// events out to subscribers synchronously, in the caller's goroutine, so
// tests observe a deterministic ordering.
type Memory struct {
	mu          sync.Mutex
	accounts    map[string]*memoryAccount
	session     *authcore.Account
	subscribers map[int]func(authcore.SessionEvent)
	nextSub     int

	signOutErr error
}

type memoryAccount struct {
	account  authcore.Account
	password string
}

// NewMemory returns an empty in-memory credential store.
func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[string]*memoryAccount),
		subscribers: make(map[int]func(authcore.SessionEvent)),
	}
}

// CurrentSession returns the account in the session slot, or (nil, nil)
// when signed out.
func (m *Memory) CurrentSession(ctx context.Context) (*authcore.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, nil
	}
	account := *m.session
	return &account, nil
}

// SignUp registers a new account and signs it in, the behavior of a hosted
// provider with email confirmation disabled. A signed-in event fires before
// SignUp returns.
func (m *Memory) SignUp(ctx context.Context, email, password string, meta authcore.SignUpMetadata) (*authcore.Account, error) {
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password should be at least 6 characters", authcore.ErrAuthRejected)
	}

	m.mu.Lock()
	if _, exists := m.accounts[email]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: user already registered", authcore.ErrAuthRejected)
	}

	account := authcore.Account{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  meta.FullName,
		CreatedAt: time.Now().UTC(),
	}
	m.accounts[email] = &memoryAccount{account: account, password: password}
	m.session = &account
	m.mu.Unlock()

	m.emit(authcore.SessionEvent{Type: authcore.SessionSignedIn, Account: &account})

	result := account
	return &result, nil
}

// SignInWithPassword authenticates against the password table. A signed-in
// event fires before the call returns.
func (m *Memory) SignInWithPassword(ctx context.Context, email, password string) (*authcore.Account, error) {
	m.mu.Lock()
	stored, ok := m.accounts[email]
	if !ok || stored.password != password {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: invalid login credentials", authcore.ErrAuthRejected)
	}

	account := stored.account
	m.session = &account
	m.mu.Unlock()

	m.emit(authcore.SessionEvent{Type: authcore.SessionSignedIn, Account: &account})

	result := account
	return &result, nil
}

// SignOut clears the session slot and fires a signed-out event. A sign-out
// error installed with SetSignOutError is returned instead, leaving the
// session in place.
func (m *Memory) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.signOutErr != nil {
		err := m.signOutErr
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	m.session = nil
	m.mu.Unlock()

	m.emit(authcore.SessionEvent{Type: authcore.SessionSignedOut})
	return nil
}

// OnSessionChange registers a handler and returns its unsubscribe function.
func (m *Memory) OnSessionChange(handler func(authcore.SessionEvent)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = handler
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *Memory) emit(event authcore.SessionEvent) {
	m.mu.Lock()
	handlers := make([]func(authcore.SessionEvent), 0, len(m.subscribers))
	for _, h := range m.subscribers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

/*
====================================
TEST HOOKS
====================================
*/

// SetSignOutError makes subsequent SignOut calls fail with err. Pass nil to
// restore normal behavior.
func (m *Memory) SetSignOutError(err error) {
	m.mu.Lock()
	m.signOutErr = err
	m.mu.Unlock()
}

// ExpireSession simulates a provider-side invalidation: it clears the
// session slot and fires a signed-out event without a SignOut call.
func (m *Memory) ExpireSession() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.emit(authcore.SessionEvent{Type: authcore.SessionSignedOut})
}

// EmitTokenRefreshed simulates a background token refresh for the current
// session. No-op when signed out.
func (m *Memory) EmitTokenRefreshed() {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	account := *m.session
	m.mu.Unlock()

	m.emit(authcore.SessionEvent{Type: authcore.SessionTokenRefreshed, Account: &account})
}
