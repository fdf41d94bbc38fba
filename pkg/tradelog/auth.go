package tradelog

import (
	"context"
	"sync"
)

// AuthStatus distinguishes "not yet known" from "known signed out".
type AuthStatus string

const (
	AuthUnknown   AuthStatus = "unknown"
	AuthSignedOut AuthStatus = "signed_out"
	AuthSignedIn  AuthStatus = "signed_in"
)

// AuthState is a snapshot of the authentication gate.
type AuthState struct {
	Status AuthStatus `json:"status"`
	UID    string     `json:"user_id,omitempty"`
}

// SignedIn reports whether a user id is known.
func (s AuthState) SignedIn() bool {
	return s.Status == AuthSignedIn && s.UID != ""
}

// Auth tracks the identity supplied by an external provider. Remote
// operations are gated on a known, present user id.
type Auth struct {
	mu        sync.Mutex
	state     AuthState
	known     chan struct{}
	observers map[int]func(AuthState)
	nextID    int
}

// NewAuth returns a gate in the unknown state.
func NewAuth() *Auth {
	return &Auth{
		state:     AuthState{Status: AuthUnknown},
		known:     make(chan struct{}),
		observers: map[int]func(AuthState){},
	}
}

// State returns the current snapshot.
func (a *Auth) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SignIn records uid as the signed-in user.
func (a *Auth) SignIn(uid string) {
	if uid == "" {
		a.SignOut()
		return
	}
	a.transition(AuthState{Status: AuthSignedIn, UID: uid})
}

// SignOut records that no user is signed in.
func (a *Auth) SignOut() {
	a.transition(AuthState{Status: AuthSignedOut})
}

// Wait blocks until the state is known or ctx is done. It returns the user id
// and true only when signed in.
func (a *Auth) Wait(ctx context.Context) (string, bool) {
	a.mu.Lock()
	known := a.known
	a.mu.Unlock()

	select {
	case <-known:
	case <-ctx.Done():
	}
	state := a.State()
	return state.UID, state.SignedIn()
}

// OnChange registers fn for every transition and returns a function that
// removes it.
func (a *Auth) OnChange(fn func(AuthState)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.observers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.observers, id)
	}
}

func (a *Auth) transition(next AuthState) {
	a.mu.Lock()
	if a.state == next {
		a.mu.Unlock()
		return
	}
	wasUnknown := a.state.Status == AuthUnknown
	a.state = next
	if wasUnknown {
		close(a.known)
	}
	observers := make([]func(AuthState), 0, len(a.observers))
	for _, fn := range a.observers {
		observers = append(observers, fn)
	}
	a.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}
