// Package simulation runs what-if simulations for analyst sessions.
//
// A session holds the analyst's threshold, the selected feed transaction and
// the state of the latest simulation. At most one simulation is in flight per
// session: starting a new one cancels the previous run and any response that
// arrives for a superseded run is discarded.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/riskdesk/internal/decision"
	"github.com/opensource-finance/riskdesk/internal/domain"
)

var (
	// ErrSessionNotFound is returned for unknown sessions or sessions owned
	// by another analyst.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSuperseded is returned to a run whose result was discarded because
	// a newer run started on the same session.
	ErrSuperseded = errors.New("simulation superseded by a newer run")

	// ErrInvalidFeatures is returned when a run has no input features.
	ErrInvalidFeatures = errors.New("simulation features are required")
)

type session struct {
	id           string
	analystID    string
	threshold    float64
	state        domain.SimulationState
	token        uint64
	selectedTxID string
	outcome      Outcome
	cancel       context.CancelFunc
	createdAt    time.Time
	updatedAt    time.Time
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID           string                 `json:"id"`
	AnalystID    string                 `json:"analystId"`
	Threshold    float64                `json:"threshold"`
	State        domain.SimulationState `json:"state"`
	Token        uint64                 `json:"token"`
	SelectedTxID string                 `json:"selectedTxId,omitempty"`
	Outcome      Outcome                `json:"outcome,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		ID:           s.id,
		AnalystID:    s.analystID,
		Threshold:    s.threshold,
		State:        s.state,
		Token:        s.token,
		SelectedTxID: s.selectedTxID,
		Outcome:      s.outcome,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

// Store holds sessions in memory.
type Store struct {
	mu               sync.Mutex
	sessions         map[string]*session
	defaultThreshold float64
}

// NewStore creates a session store. New sessions start at defaultThreshold.
func NewStore(defaultThreshold float64) *Store {
	if decision.ValidateThreshold(defaultThreshold) != nil {
		defaultThreshold = decision.StandardThreshold
	}
	return &Store{
		sessions:         make(map[string]*session),
		defaultThreshold: defaultThreshold,
	}
}

// Create starts an idle session for the analyst.
func (s *Store) Create(analystID string) Snapshot {
	now := time.Now().UTC()
	sess := &session{
		id:        uuid.New().String(),
		analystID: analystID,
		threshold: s.defaultThreshold,
		state:     domain.StateIdle,
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	return sess.snapshot()
}

// Get returns a snapshot of the session.
func (s *Store) Get(analystID, sessionID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(analystID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.snapshot(), nil
}

// SetThreshold changes the session threshold. Invalid values are rejected
// and the previous threshold is kept.
func (s *Store) SetThreshold(analystID, sessionID string, threshold float64) (Snapshot, error) {
	if err := decision.ValidateThreshold(threshold); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(analystID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.threshold = threshold
	sess.updatedAt = time.Now().UTC()
	return sess.snapshot(), nil
}

// Select records the feed transaction the analyst is looking at.
func (s *Store) Select(analystID, sessionID, txID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(analystID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.selectedTxID = txID
	sess.updatedAt = time.Now().UTC()
	return sess.snapshot(), nil
}

// Delete removes a session, cancelling its in-flight run.
func (s *Store) Delete(analystID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(analystID, sessionID)
	if err != nil {
		return err
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	delete(s.sessions, sessionID)
	return nil
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close cancels every in-flight run.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.cancel != nil {
			sess.cancel()
			sess.cancel = nil
		}
	}
}

// begin starts a new run: bumps the token, cancels the previous run and
// clears the last outcome. Must not be called with s.mu held.
func (s *Store) begin(ctx context.Context, analystID, sessionID string) (context.Context, uint64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(analystID, sessionID)
	if err != nil {
		return nil, 0, 0, err
	}

	if sess.cancel != nil {
		sess.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	sess.token++
	sess.cancel = cancel
	sess.state = domain.StateRunning
	sess.outcome = nil
	sess.updatedAt = time.Now().UTC()

	return runCtx, sess.token, sess.threshold, nil
}

// current reports whether token is still the session's latest run.
func (s *Store) current(sessionID string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	return ok && sess.token == token
}

// finish stores the outcome if token is still current.
func (s *Store) finish(sessionID string, token uint64, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.token != token {
		return ErrSuperseded
	}

	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	sess.state = outcome.State()
	sess.outcome = outcome
	sess.updatedAt = time.Now().UTC()
	return nil
}

func (s *Store) lookup(analystID, sessionID string) (*session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.analystID != analystID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}
