package profilestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fatenhq/authcore"
)

// Memory is a mutex-guarded in-memory ProfileStore and PreRegistry for
// tests and embedding. Duplicate inserts report authcore.ErrProfileExists
// exactly like the relational store.
type Memory struct {
	mu       sync.Mutex
	profiles map[string]*authcore.Profile
	prereg   []*authcore.PreRegistration

	selectErr error
	updateErr error
	insertErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]*authcore.Profile),
	}
}

// SelectByID returns a copy of the stored profile, or (nil, nil) when
// absent.
func (m *Memory) SelectByID(ctx context.Context, id string) (*authcore.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selectErr != nil {
		return nil, m.selectErr
	}

	stored, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	return copyProfile(stored), nil
}

// Insert stores a new profile row.
func (m *Memory) Insert(ctx context.Context, row authcore.ProfileInsert) (*authcore.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if _, exists := m.profiles[row.ID]; exists {
		return nil, fmt.Errorf("%w: %s", authcore.ErrProfileExists, row.ID)
	}

	now := time.Now().UTC()
	profile := &authcore.Profile{
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
	return copyProfile(profile), nil
}

// Update applies a partial patch. Updating an absent row is a no-op,
// matching the relational store.
func (m *Memory) Update(ctx context.Context, id string, patch authcore.ProfilePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

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

// LookupUnused returns the oldest unused pre-registration for email, or
// (nil, nil) when none exists.
func (m *Memory) LookupUnused(ctx context.Context, email string) (*authcore.PreRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, reg := range m.prereg {
		if reg.Email == email && !reg.Used {
			copied := *reg
			return &copied, nil
		}
	}
	return nil, nil
}

// MarkUsed consumes a pre-registration.
func (m *Memory) MarkUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, reg := range m.prereg {
		if reg.ID == id {
			reg.Used = true
			return nil
		}
	}
	return nil
}

/*
====================================
TEST HOOKS
====================================
*/

// Seed stores a profile directly, bypassing Insert.
func (m *Memory) Seed(profile authcore.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ID] = copyProfile(&profile)
}

// Get returns a copy of a stored profile for assertions, or nil.
func (m *Memory) Get(id string) *authcore.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.profiles[id]
	if !ok {
		return nil
	}
	return copyProfile(stored)
}

// AddPreRegistration stages an elevated-role account and returns its id.
func (m *Memory) AddPreRegistration(email, fullName string, role authcore.Role) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := &authcore.PreRegistration{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  fullName,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	m.prereg = append(m.prereg, reg)
	return reg.ID
}

// SetSelectError makes subsequent SelectByID calls fail with err.
func (m *Memory) SetSelectError(err error) {
	m.mu.Lock()
	m.selectErr = err
	m.mu.Unlock()
}

// SetInsertError makes subsequent Insert calls fail with err.
func (m *Memory) SetInsertError(err error) {
	m.mu.Lock()
	m.insertErr = err
	m.mu.Unlock()
}

// SetUpdateError makes subsequent Update calls fail with err.
func (m *Memory) SetUpdateError(err error) {
	m.mu.Lock()
	m.updateErr = err
	m.mu.Unlock()
}

func copyProfile(p *authcore.Profile) *authcore.Profile {
	copied := *p
	if p.Verification != nil {
		code := *p.Verification
		copied.Verification = &code
	}
	return &copied
}
