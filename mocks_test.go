package authcore

import (
	"context"
	"sync"
	"time"
)

type mockProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile

	selectErr error
	insertErr error
	updateErr error

	selectFn func(ctx context.Context, id string) (*Profile, error)

	inserts int
	updates int
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{
		profiles: make(map[string]*Profile),
	}
}

func (m *mockProfileStore) SelectByID(ctx context.Context, id string) (*Profile, error) {
	m.mu.Lock()
	fn := m.selectFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selectErr != nil {
		return nil, m.selectErr
	}
	stored, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	copied := *stored
	if stored.Verification != nil {
		code := *stored.Verification
		copied.Verification = &code
	}
	return &copied, nil
}

func (m *mockProfileStore) Insert(ctx context.Context, row ProfileInsert) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inserts++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if _, exists := m.profiles[row.ID]; exists {
		return nil, ErrProfileExists
	}

	now := time.Now().UTC()
	profile := &Profile{
		ID:        row.ID,
		Email:     row.Email,
		FullName:  row.FullName,
		Role:      row.Role,
		Status:    row.Status,
		Verified:  row.Verified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.profiles[row.ID] = profile
	copied := *profile
	return &copied, nil
}

func (m *mockProfileStore) Update(ctx context.Context, id string, patch ProfilePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}

	stored, ok := m.profiles[id]
	if !ok {
		return nil
	}
	if patch.FullName != nil {
		stored.FullName = *patch.FullName
	}
	if patch.Status != nil {
		stored.Status = *patch.Status
	}
	if patch.Verified != nil {
		stored.Verified = *patch.Verified
	}
	if patch.SetVerification {
		if patch.Verification != nil {
			code := *patch.Verification
			stored.Verification = &code
		} else {
			stored.Verification = nil
		}
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockProfileStore) seed(profile Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ID] = &profile
}

func (m *mockProfileStore) get(id string) *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.profiles[id]
	if !ok {
		return nil
	}
	copied := *stored
	if stored.Verification != nil {
		code := *stored.Verification
		copied.Verification = &code
	}
	return &copied
}

func (m *mockProfileStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

func (m *mockProfileStore) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

type mockCredentialStore struct {
	mu sync.Mutex

	current    *Account
	currentErr error
	signUpFn   func(email, password string, meta SignUpMetadata) (*Account, error)
	signInFn   func(email, password string) (*Account, error)
	signOutErr error

	handlers []func(SessionEvent)
}

func (m *mockCredentialStore) CurrentSession(ctx context.Context) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentErr != nil {
		return nil, m.currentErr
	}
	if m.current == nil {
		return nil, nil
	}
	copied := *m.current
	return &copied, nil
}

func (m *mockCredentialStore) SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*Account, error) {
	if m.signUpFn != nil {
		return m.signUpFn(email, password, meta)
	}
	return nil, ErrAuthRejected
}

func (m *mockCredentialStore) SignInWithPassword(ctx context.Context, email, password string) (*Account, error) {
	if m.signInFn != nil {
		return m.signInFn(email, password)
	}
	return nil, ErrAuthRejected
}

func (m *mockCredentialStore) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOutErr
}

func (m *mockCredentialStore) OnSessionChange(handler func(SessionEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.handlers = nil
	}
}

func (m *mockCredentialStore) emit(event SessionEvent) {
	m.mu.Lock()
	handlers := append([]func(SessionEvent){}, m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

type mockPreRegistry struct {
	mu        sync.Mutex
	staged    map[string]*PreRegistration
	lookupErr error
	used      []string
}

func newMockPreRegistry() *mockPreRegistry {
	return &mockPreRegistry{
		staged: make(map[string]*PreRegistration),
	}
}

func (m *mockPreRegistry) LookupUnused(ctx context.Context, email string) (*PreRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	reg, ok := m.staged[email]
	if !ok || reg.Used {
		return nil, nil
	}
	copied := *reg
	return &copied, nil
}

func (m *mockPreRegistry) MarkUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used = append(m.used, id)
	for _, reg := range m.staged {
		if reg.ID == id {
			reg.Used = true
		}
	}
	return nil
}
