package credstore

import (
	"context"
	"errors"
	"testing"

	"github.com/fatenhq/authcore"
)

func TestMemorySignUpAndSignIn(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	account, err := m.SignUp(ctx, "amira@example.com", "secret123", authcore.SignUpMetadata{FullName: "Amira"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if account.ID == "" || account.Email != "amira@example.com" || account.FullName != "Amira" {
		t.Fatalf("unexpected account: %+v", account)
	}

	current, err := m.CurrentSession(ctx)
	if err != nil || current == nil || current.ID != account.ID {
		t.Fatalf("expected the new account signed in, got %+v err=%v", current, err)
	}

	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if current, _ := m.CurrentSession(ctx); current != nil {
		t.Fatal("expected no session after sign-out")
	}

	signedIn, err := m.SignInWithPassword(ctx, "amira@example.com", "secret123")
	if err != nil || signedIn.ID != account.ID {
		t.Fatalf("SignInWithPassword: account=%+v err=%v", signedIn, err)
	}
}

func TestMemoryRejections(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.SignUp(ctx, "a@example.com", "short", authcore.SignUpMetadata{}); !errors.Is(err, authcore.ErrAuthRejected) {
		t.Fatalf("expected rejection for a short password, got %v", err)
	}

	if _, err := m.SignUp(ctx, "a@example.com", "secret123", authcore.SignUpMetadata{}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := m.SignUp(ctx, "a@example.com", "secret123", authcore.SignUpMetadata{}); !errors.Is(err, authcore.ErrAuthRejected) {
		t.Fatalf("expected rejection for a duplicate, got %v", err)
	}

	if _, err := m.SignInWithPassword(ctx, "a@example.com", "wrong"); !errors.Is(err, authcore.ErrAuthRejected) {
		t.Fatalf("expected rejection for a bad password, got %v", err)
	}
	if _, err := m.SignInWithPassword(ctx, "nobody@example.com", "secret123"); !errors.Is(err, authcore.ErrAuthRejected) {
		t.Fatalf("expected rejection for an unknown email, got %v", err)
	}
}

func TestMemorySessionEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var events []authcore.SessionEvent
	unsubscribe := m.OnSessionChange(func(event authcore.SessionEvent) {
		events = append(events, event)
	})

	account, err := m.SignUp(ctx, "a@example.com", "secret123", authcore.SignUpMetadata{})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	m.EmitTokenRefreshed()
	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	want := []authcore.SessionEventType{
		authcore.SessionSignedIn,
		authcore.SessionTokenRefreshed,
		authcore.SessionSignedOut,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Fatalf("event %d: expected type %v, got %v", i, typ, events[i].Type)
		}
	}
	if events[0].Account == nil || events[0].Account.ID != account.ID {
		t.Fatalf("signed-in event missing the account: %+v", events[0])
	}
	if events[2].Account != nil {
		t.Fatal("signed-out event must carry no account")
	}

	unsubscribe()
	m.ExpireSession()
	if len(events) != len(want) {
		t.Fatal("events delivered after unsubscribe")
	}
}

func TestMemorySignOutError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.SignUp(ctx, "a@example.com", "secret123", authcore.SignUpMetadata{}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	m.SetSignOutError(errors.New("network down"))
	if err := m.SignOut(ctx); !errors.Is(err, authcore.ErrAuthRejected) {
		t.Fatalf("expected the installed error, got %v", err)
	}
	if current, _ := m.CurrentSession(ctx); current == nil {
		t.Fatal("a failed sign-out must keep the session")
	}

	m.SetSignOutError(nil)
	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("SignOut after clearing the error: %v", err)
	}
}
