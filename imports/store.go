package imports

import (
	"context"
	"sync"
	"time"

	"cleaning-crm/importer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store keeps the open import sessions in memory. Sessions do not survive a
// restart; rows they already wrote do. Idle sessions are dropped by
// EvictIdle, finished and abandoned ones alike.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*importer.Session
	cfg      importer.SessionConfig
	now      func() time.Time
}

func NewStore(cfg importer.SessionConfig) *Store {
	return &Store{
		sessions: make(map[string]*importer.Session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create opens a new session in the upload phase
func (s *Store) Create() *importer.Session {
	session := importer.NewSession(uuid.New().String(), s.cfg)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	return session
}

func (s *Store) Get(id string) (*importer.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len is the number of open sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle drops every session untouched for longer than maxIdle, except
// those still writing rows. It returns how many were dropped.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, session := range s.sessions {
		if session.Evictable(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done
func (s *Store) RunEviction(ctx context.Context, interval, maxIdle time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(maxIdle); n > 0 {
				log.WithFields(logrus.Fields{"evicted": n, "open": s.Len()}).Info("idle import sessions dropped")
			}
		}
	}
}
