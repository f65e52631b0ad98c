package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// EndReason says why a session was discarded
type EndReason string

const (
	EndExplicit EndReason = "ended"
	EndEvicted  EndReason = "evicted"
	EndIdle     EndReason = "idle"
	EndShutdown EndReason = "shutdown"
)

// EndFunc observes a discarded session. It runs once per session.
type EndFunc func(st *State, reason EndReason)

// StoreOptions configures a Store
type StoreOptions struct {
	MaxSessions int
	IdleTimeout time.Duration // zero disables idle expiry
	OnEnd       EndFunc
	Logger      *slog.Logger
}

// Store owns live sessions in memory. Nothing survives a discard.
type Store struct {
	mu       sync.Mutex
	sessions *lru.Cache
	dropped  []*State
	pending  sync.WaitGroup

	idleTimeout time.Duration
	onEnd       EndFunc
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore creates a session store
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		idleTimeout: opts.IdleTimeout,
		onEnd:       opts.OnEnd,
		logger:      logger,
		now:         time.Now,
	}

	sessions, err := lru.NewWithEvict(opts.MaxSessions, func(_, value interface{}) {
		// called from inside lru operations, which only run with s.mu held
		s.dropped = append(s.dropped, value.(*State))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	s.sessions = sessions
	return s, nil
}

// Start creates an empty session. The least recently used session is
// discarded when the store is full; its OnEnd runs in the background.
func (s *Store) Start() *State {
	st := newState(uuid.NewString(), s.now())

	s.mu.Lock()
	s.sessions.Add(st.ID, st)
	dropped := s.takeDropped()
	s.mu.Unlock()

	s.logger.Info("created new session", "session_id", st.ID)
	s.fireAsync(dropped, EndEvicted)
	return st
}

// Get returns a live session and marks it active.
// A session past its idle timeout is discarded instead.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.Lock()
	val, ok := s.sessions.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, false
	}

	st := val.(*State)
	now := s.now()
	if s.expired(st, now) {
		s.sessions.Remove(id)
		dropped := s.takeDropped()
		s.mu.Unlock()
		s.fireAsync(dropped, EndIdle)
		return nil, false
	}
	st.lastActive = now
	s.mu.Unlock()
	return st, true
}

// End discards a session and runs OnEnd before returning.
// It reports whether the session was live.
func (s *Store) End(id string) bool {
	s.mu.Lock()
	present := s.sessions.Remove(id)
	dropped := s.takeDropped()
	s.mu.Unlock()

	s.fire(dropped, EndExplicit)
	return present
}

// Reap discards every session idle for longer than the idle timeout
func (s *Store) Reap() int {
	if s.idleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	now := s.now()
	for _, key := range s.sessions.Keys() {
		val, ok := s.sessions.Peek(key)
		if ok && s.expired(val.(*State), now) {
			s.sessions.Remove(key)
		}
	}
	dropped := s.takeDropped()
	s.mu.Unlock()

	s.fireAsync(dropped, EndIdle)
	return len(dropped)
}

// Close discards all sessions and waits for every pending OnEnd
func (s *Store) Close() {
	s.mu.Lock()
	s.sessions.Purge()
	dropped := s.takeDropped()
	s.mu.Unlock()

	s.fire(dropped, EndShutdown)
	s.pending.Wait()
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return s.sessions.Len()
}

// RunReaper calls Reap every interval until ctx is done
func (s *Store) RunReaper(ctx context.Context, interval time.Duration) error {
	if s.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				s.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

func (s *Store) expired(st *State, now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(st.lastActive) > s.idleTimeout
}

func (s *Store) takeDropped() []*State {
	dropped := s.dropped
	s.dropped = nil
	return dropped
}

// fireAsync ends sessions dropped as a side effect of another caller's
// request, so that caller never waits on a busy session.
func (s *Store) fireAsync(dropped []*State, reason EndReason) {
	if len(dropped) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.fire(dropped, reason)
	}()
}

func (s *Store) fire(dropped []*State, reason EndReason) {
	for _, st := range dropped {
		// wait for any in-flight action on the session to finish
		st.Lock()
		st.ended = true
		s.logger.Info("session ended", "session_id", st.ID, "reason", reason, "turns", st.Log.Len())
		if s.onEnd != nil {
			s.onEnd(st, reason)
		}
		st.Unlock()
	}
}
