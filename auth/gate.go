// Package auth owns the session: the access/refresh credential pair and
// the one-shot refresh-and-retry protocol that authorizes every REST
// call and channel handshake. All other components treat the session as
// read-only and go through the Gate to use it.
package auth

import (
	"carelink/contract"
	"carelink/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
)

// Call is an outgoing request the gate authorizes. See contract.Call.
type Call = contract.Call

type Gate struct {
	log       *slog.Logger
	authn     contract.Authenticator
	store     contract.SessionStore
	navigator contract.Navigator

	mu         sync.Mutex
	creds      *contract.Credentials
	refreshing chan struct{} // non-nil while a refresh is in flight
	refreshErr error
	prompted   bool   // navigator already notified for this session epoch
	onRefresh  func() // telemetry hook, guarded by mu, may be nil
}

func NewGate(log *slog.Logger, authn contract.Authenticator,
	store contract.SessionStore, navigator contract.Navigator) *Gate {
	return &Gate{log: log, authn: authn, store: store, navigator: navigator}
}

// OnRefresh registers a hook fired after each successful rotation.
func (g *Gate) OnRefresh(fn func()) {
	g.mu.Lock()
	g.onRefresh = fn
	g.mu.Unlock()
}

// Resume restores a persisted session, if any. Called once at boot.
func (g *Gate) Resume() error {
	creds, ok, err := g.store.Load()
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return nil
	}
	g.mu.Lock()
	g.creds = &creds
	g.prompted = false
	g.mu.Unlock()
	g.log.Info("Session restored", "user", creds.UserID)
	return nil
}

// Login validates the request, exchanges the credentials and replaces
// the session.
func (g *Gate) Login(ctx context.Context, email, password string) error {
	if err := ValidateLogin(LoginRequest{Email: email, Password: password}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidLogin, err)
	}
	creds, err := g.authn.Login(ctx, email, password)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.creds = &creds
	g.prompted = false
	g.mu.Unlock()
	if err := g.store.Save(creds); err != nil {
		g.log.Warn("Session not persisted", "error", err)
	}
	return nil
}

// Logout revokes the refresh token (best effort) and clears the session.
func (g *Gate) Logout(ctx context.Context) error {
	g.mu.Lock()
	creds := g.creds
	g.creds = nil
	g.mu.Unlock()

	if err := g.store.Clear(); err != nil {
		g.log.Warn("Session store not cleared", "error", err)
	}
	if creds == nil {
		return errors.ErrUnauthorized
	}
	if err := g.authn.Logout(ctx, creds.RefreshToken); err != nil {
		g.log.Warn("Logout call failed, session cleared locally anyway", "error", err)
	}
	return nil
}

// UserID returns the authenticated user id, or "" without a session.
// Used to derive the Mine flag on messages.
func (g *Gate) UserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.creds == nil {
		return ""
	}
	return g.creds.UserID
}

// ChannelToken returns the access token used to authenticate a channel
// handshake. Read at subscribe time so it reflects the latest refresh.
func (g *Gate) ChannelToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.creds == nil {
		return "", errors.ErrUnauthorized
	}
	return g.creds.AccessToken, nil
}

// Do authorizes one call. On errors.ErrAuthExpired it performs exactly
// one refresh and re-issues the call once; a second expiry on the
// retried call is terminal. Concurrent expiries share a single in-flight
// refresh instead of racing each other.
func (g *Gate) Do(ctx context.Context, call Call) error {
	token, err := g.currentToken()
	if err != nil {
		return err
	}

	// Local expiry pre-check spares one doomed round trip. It consumes
	// the single refresh budget of this call: a token the server still
	// rejects after it is terminal.
	refreshed := false
	if Expired(token) {
		if token, err = g.refresh(ctx, token); err != nil {
			return err
		}
		refreshed = true
	}

	err = call(ctx, token)
	if !stderrors.Is(err, errors.ErrAuthExpired) {
		return err
	}
	if refreshed {
		g.terminate()
		return errors.ErrAuthInvalid
	}

	token, err = g.refresh(ctx, token)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if stderrors.Is(err, errors.ErrAuthExpired) {
		// Fresh token rejected: the session is beyond recovery.
		g.terminate()
		return errors.ErrAuthInvalid
	}
	return err
}

func (g *Gate) currentToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.creds == nil {
		return "", errors.ErrUnauthorized
	}
	return g.creds.AccessToken, nil
}

// refresh rotates the credential pair. staleToken identifies which
// access token the caller saw fail: when another caller already rotated
// it, the fresh token is returned without a second network call.
func (g *Gate) refresh(ctx context.Context, staleToken string) (string, error) {
	g.mu.Lock()
	for {
		if g.creds == nil {
			g.mu.Unlock()
			return "", errors.ErrAuthInvalid
		}
		if g.creds.AccessToken != staleToken {
			// Someone else refreshed while we waited.
			token := g.creds.AccessToken
			g.mu.Unlock()
			return token, nil
		}
		if g.refreshing == nil {
			break
		}
		// A refresh for this expiry is already in flight: wait for it
		// rather than starting a second one.
		wait := g.refreshing
		g.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		g.mu.Lock()
		if g.refreshErr != nil {
			err := g.refreshErr
			g.mu.Unlock()
			return "", err
		}
	}

	done := make(chan struct{})
	g.refreshing = done
	g.refreshErr = nil
	refreshToken := g.creds.RefreshToken
	g.mu.Unlock()

	creds, err := g.authn.Refresh(ctx, refreshToken)

	g.mu.Lock()
	g.refreshing = nil
	if err != nil {
		g.refreshErr = errors.ErrAuthInvalid
		close(done)
		g.mu.Unlock()
		g.log.Warn("Refresh rejected, clearing session", "error", err)
		g.terminate()
		return "", errors.ErrAuthInvalid
	}
	g.creds = &creds
	hook := g.onRefresh
	close(done)
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := g.store.Save(creds); err != nil {
		g.log.Warn("Refreshed session not persisted", "error", err)
	}
	g.log.Debug("Access token refreshed")
	return creds.AccessToken, nil
}

// terminate clears the session and instructs the host to navigate to
// the re-authentication entry point, at most once per session epoch so
// concurrent failing calls don't trigger repeated redirects.
func (g *Gate) terminate() {
	g.mu.Lock()
	g.creds = nil
	alreadyPrompted := g.prompted
	g.prompted = true
	g.mu.Unlock()

	if err := g.store.Clear(); err != nil {
		g.log.Warn("Session store not cleared", "error", err)
	}
	if !alreadyPrompted && g.navigator != nil {
		g.navigator.RequireLogin()
	}
}
