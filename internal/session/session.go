package session

import (
	"context"
	"sync"
	"time"

	"github.com/ruyi-tarot/tarot-service/internal/models"
	"github.com/ruyi-tarot/tarot-service/internal/oracle"
	"github.com/sirupsen/logrus"
)

// Phase is the user-facing state of a reading session.
type Phase string

const (
	PhaseInput     Phase = "input"
	PhaseShuffling Phase = "shuffling"
	PhaseReading   Phase = "reading"
	PhaseAnalyzing Phase = "analyzing"
	PhaseResult    Phase = "result"
)

// Drawer produces a spread. Satisfied by *draw.Engine.
type Drawer interface {
	Draw(count int, deck models.DeckSystem) ([]models.DrawnCard, error)
}

// Deducter charges points for a reading, and returns them when the
// reading never produced a spread. Satisfied by *service.LedgerService.
type Deducter interface {
	Deduct(username string, amount int) (int, error)
	Refund(username string, amount int) (int, error)
}

// Session is one user's reading in progress. All mutation happens under
// mu; timers carry a generation number so a canceled transition can
// never mutate the session after the user has moved on.
type Session struct {
	mu sync.Mutex

	phase         Phase
	question      string
	deck          models.DeckSystem
	mode          models.InterpretationMode
	cards         []models.DrawnCard
	revealedCount int
	result        *models.FullReadingResponse
	lastError     string

	generation   int
	pendingTimer *time.Timer
	lastActive   time.Time
}

// Snapshot is a read-only view of a session. Unrevealed cards are not
// exposed.
type Snapshot struct {
	Phase         Phase                       `json:"phase"`
	Question      string                      `json:"question"`
	Deck          models.DeckSystem           `json:"deck"`
	Mode          models.InterpretationMode   `json:"mode"`
	SpreadSize    int                         `json:"spreadSize"`
	RevealedCount int                         `json:"revealedCount"`
	Revealed      []models.DrawnCard          `json:"revealed"`
	Result        *models.FullReadingResponse `json:"result,omitempty"`
	LastError     string                      `json:"lastError,omitempty"`
}

// Manager owns one session per username and drives every transition of
// the reading flow.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	drawer      Drawer
	deducter    Deducter
	interpreter oracle.Interpreter
	log         *logrus.Logger

	spreadSize   int
	shuffleDelay time.Duration
	settleDelay  time.Duration
}

// NewManager initializes a session manager.
func NewManager(drawer Drawer, deducter Deducter, interp oracle.Interpreter, log *logrus.Logger,
	spreadSize int, shuffleDelay, settleDelay time.Duration) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		drawer:       drawer,
		deducter:     deducter,
		interpreter:  interp,
		log:          log,
		spreadSize:   spreadSize,
		shuffleDelay: shuffleDelay,
		settleDelay:  settleDelay,
	}
}

func (m *Manager) session(username string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[username]
	if !ok {
		s = &Session{phase: PhaseInput}
		m.sessions[username] = s
	}
	// Guarded by m.mu, as is Sweep's read.
	s.lastActive = time.Now()
	return s
}

// Sweep evicts sessions idle longer than maxIdle so the per-username
// map stays bounded on long-running deployments. Evicted sessions have
// their pending timers invalidated; the user simply starts over at
// input. Returns the number of sessions removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for username, s := range m.sessions {
		if s.lastActive.After(cutoff) {
			continue
		}
		s.mu.Lock()
		s.generation++
		if s.pendingTimer != nil {
			s.pendingTimer.Stop()
			s.pendingTimer = nil
		}
		s.mu.Unlock()
		delete(m.sessions, username)
		removed++
	}
	if removed > 0 {
		m.log.Infof("Session sweep removed %d idle sessions", removed)
	}
	return removed
}

// Start begins a reading: validates the question, charges one point
// atomically with the input -> shuffling transition, and schedules the
// draw after the shuffle delay. On any guard failure the session stays
// in input unchanged.
func (m *Manager) Start(username, question string, deck models.DeckSystem, mode models.InterpretationMode) error {
	s := m.session(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInput {
		return models.ErrWrongPhase
	}
	if isBlank(question) {
		return models.ErrEmptyQuestion
	}

	// The deduction is the transition guard: if it fails nothing below
	// runs and the phase does not change.
	if _, err := m.deducter.Deduct(username, 1); err != nil {
		return err
	}

	s.phase = PhaseShuffling
	s.question = question
	s.deck = deck
	s.mode = mode
	s.cards = nil
	s.result = nil
	s.revealedCount = 0
	s.lastError = ""
	s.generation++

	gen := s.generation
	s.pendingTimer = time.AfterFunc(m.shuffleDelay, func() {
		m.finishShuffle(username, s, gen)
	})

	m.log.Infof("Reading started for %s (deck=%s mode=%s)", username, deck, mode)
	return nil
}

// finishShuffle is the automatic shuffling -> reading transition.
func (m *Manager) finishShuffle(username string, s *Session, gen int) {
	cards, err := m.drawer.Draw(m.spreadSize, m.deckOf(s))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Navigation or a reset invalidated this timer.
	if s.generation != gen || s.phase != PhaseShuffling {
		return
	}
	if err != nil {
		s.phase = PhaseInput
		s.lastError = err.Error()
		m.log.Warnf("Draw failed for %s: %v", username, err)
		// The charge bought a spread that never materialized.
		if _, rerr := m.deducter.Refund(username, 1); rerr != nil {
			m.log.Errorf("Refund failed for %s: %v", username, rerr)
		}
		return
	}

	s.cards = cards
	s.revealedCount = 0
	s.phase = PhaseReading
}

func (m *Manager) deckOf(s *Session) models.DeckSystem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck
}

// Reveal accepts a reveal at idx only when idx is the next unrevealed
// position. The check and the increment happen under the session lock,
// so two racing reveals for the same idx cannot both succeed. Once the
// spread is fully revealed the reading -> analyzing transition is
// scheduled after the settle delay.
func (m *Manager) Reveal(username string, idx int) (int, error) {
	s := m.session(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseReading {
		return s.revealedCount, models.ErrWrongPhase
	}
	if idx != s.revealedCount {
		return s.revealedCount, models.ErrOutOfOrder
	}

	s.revealedCount++
	if s.revealedCount == len(s.cards) {
		s.generation++
		gen := s.generation
		s.pendingTimer = time.AfterFunc(m.settleDelay, func() {
			m.beginAnalysis(username, s, gen)
		})
	}
	return s.revealedCount, nil
}

// beginAnalysis moves the session to analyzing and invokes the oracle
// in the background.
func (m *Manager) beginAnalysis(username string, s *Session, gen int) {
	s.mu.Lock()
	if s.generation != gen || s.phase != PhaseReading || s.revealedCount != len(s.cards) {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseAnalyzing
	req := models.ReadingRequest{
		Question: s.question,
		Deck:     s.deck,
		Mode:     s.mode,
		Cards:    s.cards,
	}
	s.mu.Unlock()

	go m.interpret(username, s, gen, req)
}

// interpret runs the oracle call. On success the session reaches
// result; on failure it returns to reading with the spread still fully
// revealed, and the user retries explicitly. The cards are never
// redrawn on this path.
func (m *Manager) interpret(username string, s *Session, gen int, req models.ReadingRequest) {
	reading, err := m.interpreter.Interpret(context.Background(), req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || s.phase != PhaseAnalyzing {
		return
	}
	if err != nil {
		s.phase = PhaseReading
		s.lastError = "Interpretation failed. Please retry."
		m.log.Warnf("Interpretation failed for %s: %v", username, err)
		return
	}

	s.result = &reading
	s.lastError = ""
	s.phase = PhaseResult
	m.log.Infof("Reading completed for %s", username)
}

// Interpret retries the oracle from a fully revealed spread after a
// failure. There is no automatic retry.
func (m *Manager) Interpret(username string) error {
	s := m.session(username)
	s.mu.Lock()

	if s.phase != PhaseReading {
		s.mu.Unlock()
		return models.ErrWrongPhase
	}
	if len(s.cards) == 0 || s.revealedCount != len(s.cards) {
		s.mu.Unlock()
		return models.ErrSpreadNotReady
	}

	s.generation++
	gen := s.generation
	s.phase = PhaseAnalyzing
	req := models.ReadingRequest{
		Question: s.question,
		Deck:     s.deck,
		Mode:     s.mode,
		Cards:    s.cards,
	}
	s.mu.Unlock()

	go m.interpret(username, s, gen, req)
	return nil
}

// Reset returns the session to input, discarding the question, cards
// and interpretation. It also covers navigation away: a pending
// shuffle (or settle) timer is invalidated so a stale draw can never
// materialize afterwards.
func (m *Manager) Reset(username string) {
	s := m.session(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}

	s.phase = PhaseInput
	s.question = ""
	s.cards = nil
	s.result = nil
	s.revealedCount = 0
	s.lastError = ""
}

// State returns a snapshot of the session for the given user.
func (m *Manager) State(username string) Snapshot {
	s := m.session(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	revealed := make([]models.DrawnCard, s.revealedCount)
	copy(revealed, s.cards[:s.revealedCount])

	return Snapshot{
		Phase:         s.phase,
		Question:      s.question,
		Deck:          s.deck,
		Mode:          s.mode,
		SpreadSize:    m.spreadSize,
		RevealedCount: s.revealedCount,
		Revealed:      revealed,
		Result:        s.result,
		LastError:     s.lastError,
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
