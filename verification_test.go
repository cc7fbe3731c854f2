package authcore

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fatenhq/authcore/internal/limiters"
)

func newTestCodeEngine(store ProfileStore, now func() time.Time) *CodeEngine {
	if now == nil {
		now = time.Now
	}
	return &CodeEngine{
		config:   defaultConfig().Verification,
		profiles: store,
		logger:   zerolog.Nop(),
		now:      now,
	}
}

func seedAccountProfile(store *mockProfileStore, id string) {
	store.seed(Profile{
		ID:     id,
		Email:  id + "@example.com",
		Role:   RoleUser,
		Status: StatusActive,
	})
}

func TestIssueCodeStampsProfile(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestCodeEngine(store, func() time.Time { return base })

	code, err := engine.IssueCode(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("IssueCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected a six-digit code, got %q", code)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100000 || n > 999999 {
		t.Fatalf("code %q outside expected range", code)
	}

	profile := store.get("acct-1")
	if profile.Verification == nil {
		t.Fatal("expected a live verification code on the profile")
	}
	if profile.Verification.Code != code {
		t.Fatalf("stored code %q does not match returned code %q", profile.Verification.Code, code)
	}
	want := base.Add(15 * time.Minute)
	if !profile.Verification.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, profile.Verification.ExpiresAt)
	}
}

func TestIssueCodeLogsCodeAtDebug(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")

	var buf bytes.Buffer
	engine := newTestCodeEngine(store, nil)
	engine.logger = zerolog.New(&buf)

	code, err := engine.IssueCode(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"code":"`+code+`"`) {
		t.Fatalf("expected the issued code in the debug log, got %q", out)
	}
	if !strings.Contains(out, `"account_id":"acct-1"`) {
		t.Fatalf("expected the account id in the debug log, got %q", out)
	}
}

func TestIssueCodeOverwritesPriorCode(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")
	engine := newTestCodeEngine(store, nil)
	ctx := context.Background()

	first, err := engine.IssueCode(ctx, "acct-1")
	if err != nil {
		t.Fatalf("first IssueCode: %v", err)
	}
	second, err := engine.IssueCode(ctx, "acct-1")
	if err != nil {
		t.Fatalf("second IssueCode: %v", err)
	}

	if ok, err := engine.ValidateCode(ctx, "acct-1", first); err != nil || ok {
		if first == second {
			t.Skip("collision between generated codes")
		}
		t.Fatalf("overwritten code validated: ok=%v err=%v", ok, err)
	}
	if ok, err := engine.ValidateCode(ctx, "acct-1", second); err != nil || !ok {
		t.Fatalf("live code rejected: ok=%v err=%v", ok, err)
	}
}

func TestIssueCodeMissingProfileIsSilent(t *testing.T) {
	store := newMockProfileStore()
	engine := newTestCodeEngine(store, nil)

	code, err := engine.IssueCode(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("IssueCode against an absent row errored: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected a code even without a row, got %q", code)
	}
}

func TestIssueCodeRejectsEmptyAccount(t *testing.T) {
	engine := newTestCodeEngine(newMockProfileStore(), nil)

	if _, err := engine.IssueCode(context.Background(), ""); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestIssueCodeStoreWriteFailure(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")
	store.updateErr = errors.New("connection reset")
	engine := newTestCodeEngine(store, nil)

	if _, err := engine.IssueCode(context.Background(), "acct-1"); !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
}

func TestIssueCodeThrottled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")

	engine := newTestCodeEngine(store, nil)
	engine.limiter = limiters.NewVerificationLimiter(client, "fvc", limiters.VerificationConfig{
		EnableAccountThrottle: true,
		Window:                15 * time.Minute,
		MaxIssues:             2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.IssueCode(ctx, "acct-1"); err != nil {
			t.Fatalf("issue %d under the cap failed: %v", i+1, err)
		}
	}
	if _, err := engine.IssueCode(ctx, "acct-1"); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected ErrCodeRateLimited, got %v", err)
	}

	mr.FastForward(16 * time.Minute)
	if _, err := engine.IssueCode(ctx, "acct-1"); err != nil {
		t.Fatalf("issue after the window failed: %v", err)
	}
}

func TestIssueCodeLimiterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")

	engine := newTestCodeEngine(store, nil)
	engine.limiter = limiters.NewVerificationLimiter(client, "fvc", limiters.VerificationConfig{
		EnableAccountThrottle: true,
		Window:                15 * time.Minute,
		MaxIssues:             2,
	})

	mr.Close()
	if _, err := engine.IssueCode(context.Background(), "acct-1"); !errors.Is(err, ErrCodeUnavailable) {
		t.Fatalf("expected ErrCodeUnavailable, got %v", err)
	}
}

func TestValidateCodeSuccessIsSingleUse(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")
	engine := newTestCodeEngine(store, nil)
	ctx := context.Background()

	code, err := engine.IssueCode(ctx, "acct-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	ok, err := engine.ValidateCode(ctx, "acct-1", code)
	if err != nil || !ok {
		t.Fatalf("expected validation success, got ok=%v err=%v", ok, err)
	}

	profile := store.get("acct-1")
	if !profile.Verified {
		t.Fatal("expected profile to be verified")
	}
	if profile.Verification != nil {
		t.Fatal("expected the code pair to be cleared")
	}

	ok, err = engine.ValidateCode(ctx, "acct-1", code)
	if err != nil || ok {
		t.Fatalf("expected replay to fail, got ok=%v err=%v", ok, err)
	}
}

func TestValidateCodeExpiredLeavesFields(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestCodeEngine(store, func() time.Time { return now })
	ctx := context.Background()

	code, err := engine.IssueCode(ctx, "acct-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	now = now.Add(15*time.Minute + time.Second)

	ok, err := engine.ValidateCode(ctx, "acct-1", code)
	if err != nil || ok {
		t.Fatalf("expected expired code to fail, got ok=%v err=%v", ok, err)
	}

	profile := store.get("acct-1")
	if profile.Verified {
		t.Fatal("expired validation must not verify the profile")
	}
	if profile.Verification == nil || profile.Verification.Code != code {
		t.Fatal("expired code fields must be left in place")
	}
}

func TestValidateCodeAtExpiryBoundary(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestCodeEngine(store, func() time.Time { return now })
	ctx := context.Background()

	code, err := engine.IssueCode(ctx, "acct-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	// Exactly at the expiry instant the code is still acceptable.
	now = now.Add(15 * time.Minute)

	ok, err := engine.ValidateCode(ctx, "acct-1", code)
	if err != nil || !ok {
		t.Fatalf("expected code valid at the boundary, got ok=%v err=%v", ok, err)
	}
}

func TestValidateCodeMismatchHasNoSideEffects(t *testing.T) {
	store := newMockProfileStore()
	store.seed(Profile{
		ID:     "acct-1",
		Role:   RoleUser,
		Status: StatusActive,
		Verification: &VerificationCode{
			Code:      "483920",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		},
	})
	engine := newTestCodeEngine(store, nil)

	before := store.updateCount()
	ok, err := engine.ValidateCode(context.Background(), "acct-1", "000001")
	if err != nil || ok {
		t.Fatalf("expected mismatch to fail cleanly, got ok=%v err=%v", ok, err)
	}
	if store.updateCount() != before {
		t.Fatal("mismatch must not write to the store")
	}

	profile := store.get("acct-1")
	if profile.Verified || profile.Verification == nil || profile.Verification.Code != "483920" {
		t.Fatal("mismatch must leave the profile untouched")
	}
}

func TestValidateCodeAbsentRowOrCode(t *testing.T) {
	store := newMockProfileStore()
	engine := newTestCodeEngine(store, nil)
	ctx := context.Background()

	if ok, err := engine.ValidateCode(ctx, "ghost", "123456"); err != nil || ok {
		t.Fatalf("absent row: expected (false, nil), got ok=%v err=%v", ok, err)
	}

	seedAccountProfile(store, "acct-1")
	if ok, err := engine.ValidateCode(ctx, "acct-1", "123456"); err != nil || ok {
		t.Fatalf("absent code: expected (false, nil), got ok=%v err=%v", ok, err)
	}
}

func TestValidateCodeWriteFailure(t *testing.T) {
	store := newMockProfileStore()
	seedAccountProfile(store, "acct-1")
	engine := newTestCodeEngine(store, nil)
	ctx := context.Background()

	code, err := engine.IssueCode(ctx, "acct-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	store.mu.Lock()
	store.updateErr = errors.New("connection reset")
	store.mu.Unlock()

	ok, err := engine.ValidateCode(ctx, "acct-1", code)
	if ok {
		t.Fatal("a failed verify write must not report success")
	}
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
}

func TestDefaultCodeTTL(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Verification.CodeTTL != 15*time.Minute {
		t.Fatalf("expected a 15 minute default TTL, got %v", cfg.Verification.CodeTTL)
	}
}
