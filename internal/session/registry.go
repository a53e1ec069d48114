package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry holds the live runners. A signed-in holder has at most one live
// session; opening another closes the previous one. Anonymous sessions are
// independent and reachable only by id.
type Registry struct {
	template RunnerConfig
	clock    clockwork.Clock
	log      zerolog.Logger

	mu       sync.Mutex
	runners  map[string]*Runner
	byHolder map[string]string
}

// NewRegistry creates a registry whose runners are built from template.
// The template's ID and UserID are ignored.
func NewRegistry(template RunnerConfig) *Registry {
	if template.Clock == nil {
		template.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		template: template,
		clock:    template.Clock,
		log:      template.Logger.With().Str("component", "session_registry").Logger(),
		runners:  make(map[string]*Runner),
		byHolder: make(map[string]string),
	}
}

// Open creates a new session for userID ("" for anonymous).
func (g *Registry) Open(userID string) *Runner {
	cfg := g.template
	cfg.ID = uuid.NewString()
	cfg.UserID = userID
	r := NewRunner(cfg)

	var previous *Runner
	g.mu.Lock()
	g.runners[r.ID()] = r
	if userID != "" {
		if prevID, ok := g.byHolder[userID]; ok {
			previous = g.runners[prevID]
			delete(g.runners, prevID)
		}
		g.byHolder[userID] = r.ID()
	}
	g.mu.Unlock()

	if previous != nil {
		previous.Close()
		g.log.Debug().Str("user_id", userID).Str("session_id", previous.ID()).Msg("Replaced previous session")
	}
	return r
}

func (g *Registry) Get(id string) (*Runner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.runners[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r, nil
}

// Close stops and forgets a session.
func (g *Registry) Close(id string) error {
	g.mu.Lock()
	r, ok := g.runners[id]
	if ok {
		g.forget(r)
	}
	g.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	r.Close()
	return nil
}

// forget must be called with mu held.
func (g *Registry) forget(r *Runner) {
	delete(g.runners, r.ID())
	if uid := r.UserID(); uid != "" && g.byHolder[uid] == r.ID() {
		delete(g.byHolder, uid)
	}
}

// Len reports the number of live sessions.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runners)
}

// Sweep closes sessions that have not been used for ttl and returns how many
// were closed. A session whose countdown is running is never idle; it ends
// through its own timeout.
func (g *Registry) Sweep(ttl time.Duration) int {
	cutoff := g.clock.Now().Add(-ttl)

	var stale []*Runner
	g.mu.Lock()
	for _, r := range g.runners {
		if !r.running.Load() && r.IdleSince().Before(cutoff) {
			stale = append(stale, r)
			g.forget(r)
		}
	}
	g.mu.Unlock()

	for _, r := range stale {
		r.Close()
	}
	return len(stale)
}

// CloseAll stops every live session.
func (g *Registry) CloseAll() {
	g.mu.Lock()
	all := make([]*Runner, 0, len(g.runners))
	for _, r := range g.runners {
		all = append(all, r)
	}
	g.runners = make(map[string]*Runner)
	g.byHolder = make(map[string]string)
	g.mu.Unlock()

	for _, r := range all {
		r.Close()
	}
}

// Run sweeps idle sessions every interval until ctx is done, then closes
// everything. Call in a goroutine.
func (g *Registry) Run(ctx context.Context, interval, ttl time.Duration) {
	g.log.Info().Dur("interval", interval).Dur("ttl", ttl).Msg("Session janitor started")

	ticker := g.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.CloseAll()
			g.log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.Chan():
			if n := g.Sweep(ttl); n > 0 {
				g.log.Info().Int("closed", n).Int("live", g.Len()).Msg("Swept idle sessions")
			}
		}
	}
}
