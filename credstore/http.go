package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fatenhq/authcore"
)

// Client is a CredentialStore backed by a GoTrue-compatible hosted auth
// service (the API surface Supabase exposes). It keeps the current session
// client-side and notifies subscribers of changes it initiates.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu          sync.Mutex
	account     *authcore.Account
	accessToken string
	subscribers map[int]func(authcore.SessionEvent)
	nextSub     int
}

// NewClient builds a Client for the auth service at baseURL. httpClient may
// be nil, in which case a client with a 10 second timeout is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		http:        httpClient,
		subscribers: make(map[int]func(authcore.SessionEvent)),
	}
}

// NewClientWithToken builds a Client that adopts a previously persisted
// access token. The first CurrentSession call resolves the token against the
// service's /user endpoint, so an orchestrator restore picks up a session
// established by an earlier process.
func NewClientWithToken(baseURL, apiKey, accessToken string, httpClient *http.Client) *Client {
	c := NewClient(baseURL, apiKey, httpClient)
	c.accessToken = accessToken
	return c
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         userPayload `json:"user"`
}

type userPayload struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	UserMetadata map[string]string `json:"user_metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}

type errorPayload struct {
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	ErrorCode        string `json:"error"`
}

// CurrentSession returns the account for the held session. An adopted token
// that has not been resolved yet is exchanged for the account via /user; a
// token the service no longer accepts is discarded and reported as no
// session rather than an error.
func (c *Client) CurrentSession(ctx context.Context) (*authcore.Account, error) {
	c.mu.Lock()
	account := c.account
	token := c.accessToken
	c.mu.Unlock()

	if account != nil {
		copied := *account
		return &copied, nil
	}
	if token == "" {
		return nil, nil
	}

	restored, err := c.fetchUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if restored == nil {
		c.mu.Lock()
		if c.accessToken == token {
			c.accessToken = ""
		}
		c.mu.Unlock()
		return nil, nil
	}

	c.adoptSession(restored, token)
	copied := *restored
	return &copied, nil
}

// fetchUser resolves an access token into its account through GET /user.
// A 401 or 403 means the token is dead and yields (nil, nil).
func (c *Client) fetchUser(ctx context.Context, token string) (*authcore.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", authcore.ErrAuthRejected, providerMessage(resp))
	}

	var user userPayload
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	if user.ID == "" {
		return nil, nil
	}

	return &authcore.Account{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.UserMetadata["full_name"],
		CreatedAt: user.CreatedAt,
	}, nil
}

// SignUp registers a new account. When the service auto-confirms and
// returns a session, the client signs in and fires a signed-in event.
func (c *Client) SignUp(ctx context.Context, email, password string, meta authcore.SignUpMetadata) (*authcore.Account, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"full_name": meta.FullName,
		},
	}

	var resp tokenResponse
	if err := c.post(ctx, "/signup", "", body, &resp); err != nil {
		return nil, err
	}

	account := c.accountFrom(resp)
	if account == nil {
		return nil, fmt.Errorf("%w: signup response carried no user", authcore.ErrAuthRejected)
	}

	if resp.AccessToken != "" {
		c.adoptSession(account, resp.AccessToken)
		c.emit(authcore.SessionEvent{Type: authcore.SessionSignedIn, Account: account})
	}

	result := *account
	return &result, nil
}

// SignInWithPassword performs the password grant and adopts the returned
// session. A signed-in event fires before the call returns.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authcore.Account, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	account := c.accountFrom(resp)
	if account == nil || resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response carried no session", authcore.ErrAuthRejected)
	}

	c.adoptSession(account, resp.AccessToken)
	c.emit(authcore.SessionEvent{Type: authcore.SessionSignedIn, Account: account})

	result := *account
	return &result, nil
}

// SignOut revokes the session server-side, then drops it locally and fires
// a signed-out event. The local session survives a failed revocation.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	if token == "" {
		return nil
	}

	if err := c.post(ctx, "/logout", token, nil, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.account = nil
	c.accessToken = ""
	c.mu.Unlock()

	c.emit(authcore.SessionEvent{Type: authcore.SessionSignedOut})
	return nil
}

// OnSessionChange registers a handler and returns its unsubscribe function.
func (c *Client) OnSessionChange(handler func(authcore.SessionEvent)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Client) adoptSession(account *authcore.Account, token string) {
	c.mu.Lock()
	copied := *account
	c.account = &copied
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) emit(event authcore.SessionEvent) {
	c.mu.Lock()
	handlers := make([]func(authcore.SessionEvent), 0, len(c.subscribers))
	for _, h := range c.subscribers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// accountFrom builds the Account from the user payload, falling back to the
// unverified access-token claims when the payload is empty. The token came
// over TLS from the service that minted it, and nothing security-relevant
// is derived from the claims, only display identity.
func (c *Client) accountFrom(resp tokenResponse) *authcore.Account {
	if resp.User.ID != "" {
		return &authcore.Account{
			ID:        resp.User.ID,
			Email:     resp.User.Email,
			FullName:  resp.User.UserMetadata["full_name"],
			CreatedAt: resp.User.CreatedAt,
		}
	}

	if resp.AccessToken == "" {
		return nil
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(resp.AccessToken, claims); err != nil {
		return nil
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)

	account := &authcore.Account{ID: sub, Email: email}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		account.FullName, _ = meta["full_name"].(string)
	}
	return account
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", authcore.ErrAuthRejected, providerMessage(resp))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrAuthRejected, err)
	}
	return nil
}

// providerMessage surfaces the service's own error text verbatim so a
// caller sees the same message a browser client would.
func providerMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		var payload errorPayload
		if json.Unmarshal(raw, &payload) == nil {
			switch {
			case payload.ErrorDescription != "":
				return payload.ErrorDescription
			case payload.Msg != "":
				return payload.Msg
			case payload.ErrorCode != "":
				return payload.ErrorCode
			}
		}
	}
	return resp.Status
}
