// Package session decides whether the console shows the login flow or the
// authenticated shell.
package session

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/BradenHooton/billdesk/internal/models"
)

// TokenStore is what the gate reads at bootstrap.
type TokenStore interface {
	IsAuthenticated() bool
	UserProfile() (models.UserProfile, bool)
}

// Logouter ends the session on the backend and clears local credentials.
type Logouter interface {
	Logout(ctx context.Context)
}

// State is the gate's view of the session.
type State struct {
	Authenticated bool
	User          models.UserProfile
}

// Gate holds the authenticated flag and the current user.
type Gate struct {
	store    TokenStore
	logouter Logouter
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// NewGate reads the store once, synchronously, so the first render already
// knows which tree to show.
func NewGate(store TokenStore, logouter Logouter, logger *slog.Logger) *Gate {
	g := &Gate{
		store:     store,
		logouter:  logouter,
		logger:    logger,
		listeners: make(map[int]func(State)),
	}
	g.state = g.read()
	return g
}

// Confirm re-reads the store after the first render and publishes the
// result if it differs from the bootstrap read.
func (g *Gate) Confirm() State {
	next := g.read()
	g.update(next)
	return next
}

// OnLogin marks the session authenticated. A nil user falls back to the
// cached profile.
func (g *Gate) OnLogin(user models.UserProfile) {
	if user == nil {
		user, _ = g.store.UserProfile()
	}
	g.logger.Info("session started", slog.String("user", user.String("id")))
	g.update(State{Authenticated: true, User: user})
}

// OnLogout ends the session. The gate flips to unauthenticated whatever the
// backend answers.
func (g *Gate) OnLogout(ctx context.Context) {
	defer g.update(State{})
	g.logouter.Logout(ctx)
	g.logger.Info("session ended")
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Subscribe registers fn for state changes and returns a func that
// removes it.
func (g *Gate) Subscribe(fn func(State)) func() {
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

func (g *Gate) read() State {
	if !g.store.IsAuthenticated() {
		return State{}
	}
	user, _ := g.store.UserProfile()
	return State{Authenticated: true, User: user}
}

func (g *Gate) update(next State) {
	g.mu.Lock()
	if g.state.Authenticated == next.Authenticated && reflect.DeepEqual(g.state.User, next.User) {
		g.mu.Unlock()
		return
	}
	g.state = next
	listeners := make([]func(State), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}
