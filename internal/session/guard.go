// Package session holds the signed-in user for the whole process and decides
// whether a protected view may render.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/validate"
)

// State is the guard's authentication state.
type State string

const (
	Unauthenticated State = "unauthenticated"
	Verifying       State = "verifying"
	Authenticated   State = "authenticated"
)

// Decision is the outcome of Authorize for a protected view.
type Decision int

const (
	// Allow renders the view.
	Allow Decision = iota
	// Wait renders a loading placeholder while a stored token is verified.
	Wait
	// RedirectLogin sends the user to the login entry point.
	RedirectLogin
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	default:
		return "redirect_login"
	}
}

// Session is the authenticated user with the token that proved it.
type Session struct {
	User  apiclient.User
	Token string
}

// Authenticator is the slice of the auth API the guard needs.
type Authenticator interface {
	Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.LoginResult, error)
	Me(ctx context.Context) (*apiclient.User, error)
}

// LoginResult is returned by Login. Message is user-facing.
type LoginResult struct {
	Success bool
	User    *apiclient.User
	Message string
	Err     error
}

// Recorder receives state transitions for metrics.
type Recorder interface {
	SessionTransition(state string)
}

// Guard is the process-scoped session store. Create it once and pass it
// to whatever needs the current user.
type Guard struct {
	store  TokenStore
	auth   Authenticator
	schema *validate.Schema
	now    func() time.Time
	rec    Recorder
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	token     string
	session   *Session
	gen       uint64
	listeners map[int]func(State)
	nextID    int

	wg sync.WaitGroup
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithSchema validates credentials before Login calls the API.
func WithSchema(s *validate.Schema) GuardOption {
	return func(g *Guard) { g.schema = s }
}

func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

func WithRecorder(r Recorder) GuardOption {
	return func(g *Guard) { g.rec = r }
}

func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// NewGuard returns a guard in the Unauthenticated state. Call Init or Start
// to restore a persisted session.
func NewGuard(store TokenStore, auth Authenticator, opts ...GuardOption) *Guard {
	g := &Guard{
		store:     store,
		auth:      auth,
		now:       time.Now,
		logger:    slog.Default(),
		state:     Unauthenticated,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Token returns the bearer token for outgoing requests. It is also set
// while a stored token is being verified.
func (g *Guard) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Session returns the current session when authenticated.
func (g *Guard) Session() (Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return Session{}, false
	}
	return *g.session, true
}

// Init restores the persisted session synchronously. Without a stored
// token the guard is Unauthenticated on return and no request was made.
func (g *Guard) Init(ctx context.Context) error {
	gen, token, err := g.restore(ctx)
	if token == "" {
		return err
	}
	return g.verify(ctx, gen, token)
}

// Start is Init with the verification request running in the background.
// On return the state is either Unauthenticated or Verifying.
func (g *Guard) Start(ctx context.Context) error {
	gen, token, err := g.restore(ctx)
	if token == "" {
		return err
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.verify(ctx, gen, token); err != nil {
			g.logger.Warn("session verification failed", "error", err)
		}
	}()
	return nil
}

// WaitVerified blocks until a verification started by Start has finished.
func (g *Guard) WaitVerified() {
	g.wg.Wait()
}

// restore loads the stored token. It returns "" (and leaves the guard
// Unauthenticated) when there is nothing to verify.
func (g *Guard) restore(ctx context.Context) (uint64, string, error) {
	token, err := g.store.Load(ctx)
	if err != nil {
		g.transition(Unauthenticated, "", nil)
		return 0, "", fmt.Errorf("loading stored token: %w", err)
	}
	if token == "" {
		g.transition(Unauthenticated, "", nil)
		return 0, "", nil
	}
	if exp, ok := Expiry(token); ok && !exp.After(g.now()) {
		g.logger.Info("stored token expired", "expired_at", exp)
		if err := g.store.Clear(ctx); err != nil {
			g.logger.Warn("failed to clear expired token", "error", err)
		}
		g.transition(Unauthenticated, "", nil)
		return 0, "", nil
	}
	gen := g.transition(Verifying, token, nil)
	return gen, token, nil
}

func (g *Guard) verify(ctx context.Context, gen uint64, token string) error {
	user, err := g.auth.Me(ctx)

	g.mu.RLock()
	superseded := gen != g.gen
	g.mu.RUnlock()
	if superseded {
		return nil
	}

	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			// The server rejected the token.
			if cerr := g.store.Clear(ctx); cerr != nil {
				g.logger.Warn("failed to clear rejected token", "error", cerr)
			}
		}
		g.transitionIf(gen, Unauthenticated, "", nil)
		return fmt.Errorf("verifying stored token: %w", err)
	}

	g.transitionIf(gen, Authenticated, token, &Session{User: *user, Token: token})
	g.logger.Info("session restored", "user_id", user.ID, "role", user.Role)
	return nil
}

// Login validates creds against the schema, then posts them. On success the
// token is persisted and the guard becomes Authenticated. On failure the
// state is left unchanged.
func (g *Guard) Login(ctx context.Context, creds apiclient.Credentials) LoginResult {
	if g.schema != nil {
		if err := g.schema.Credentials(creds); err != nil {
			return LoginResult{Message: apiclient.Message(err), Err: err}
		}
		creds = g.schema.Clean(creds)
	}

	res, err := g.auth.Login(ctx, creds)
	if err != nil {
		return LoginResult{Message: loginMessage(err), Err: err}
	}
	if err := g.store.Save(ctx, res.Token); err != nil {
		g.logger.Error("failed to persist token", "error", err)
		return LoginResult{Message: "Login succeeded but the session could not be saved", Err: err}
	}

	user := res.User
	g.transition(Authenticated, res.Token, &Session{User: user, Token: res.Token})
	g.logger.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	return LoginResult{Success: true, User: &user}
}

func loginMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if apiclient.IsTransport(err) {
		return apiclient.Message(err)
	}
	return "Login failed"
}

// Logout clears the stored token and becomes Unauthenticated.
func (g *Guard) Logout(ctx context.Context) error {
	g.transition(Unauthenticated, "", nil)
	if err := g.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing stored token: %w", err)
	}
	return nil
}

// Expire ends the session after the API answered 401.
func (g *Guard) Expire() {
	if g.State() == Unauthenticated && g.Token() == "" {
		return
	}
	g.logger.Info("session expired")
	if err := g.Logout(context.Background()); err != nil {
		g.logger.Warn("failed to clear expired session", "error", err)
	}
}

// Authorize decides whether a view limited to roles may render. No roles
// means any authenticated user.
func (g *Guard) Authorize(roles ...apiclient.Role) Decision {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch g.state {
	case Verifying:
		return Wait
	case Authenticated:
		if len(roles) == 0 || slices.Contains(roles, g.session.User.Role) {
			return Allow
		}
		return RedirectLogin
	default:
		return RedirectLogin
	}
}

// Subscribe registers fn for state changes. It returns a cancel func.
func (g *Guard) Subscribe(fn func(State)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.listeners, id)
	}
}

// transition sets the state unconditionally and starts a new generation so
// any verification in flight is ignored.
func (g *Guard) transition(state State, token string, s *Session) uint64 {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	changed := g.set(state, token, s)
	g.mu.Unlock()
	g.notify(changed, state)
	return gen
}

// transitionIf applies only if no other transition happened since gen.
func (g *Guard) transitionIf(gen uint64, state State, token string, s *Session) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	changed := g.set(state, token, s)
	g.mu.Unlock()
	g.notify(changed, state)
}

// set requires g.mu held and returns the listeners to call when the state
// changed.
func (g *Guard) set(state State, token string, s *Session) []func(State) {
	prev := g.state
	g.state = state
	g.token = token
	g.session = s
	if prev == state && state != Authenticated {
		return nil
	}
	fns := make([]func(State), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func (g *Guard) notify(fns []func(State), state State) {
	if fns == nil {
		return
	}
	if g.rec != nil {
		g.rec.SessionTransition(string(state))
	}
	for _, fn := range fns {
		fn(state)
	}
}
