package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jaminalder/tictactoe-web/internal/domain"
	"github.com/jaminalder/tictactoe-web/internal/history"
	"github.com/jaminalder/tictactoe-web/internal/storage"
)

// Errors exposed by the service layer.
var (
	ErrNotFound    = errors.New("game not found")
	ErrNotYourTurn = errors.New("not your turn")
)

// Chooser selects the opponent's move. *bot.Opponent implements it.
type Chooser interface {
	ChooseMove(board domain.Board, self domain.Cell) (int, bool)
}

// GameState is what callers render after each operation.
type GameState struct {
	ID      string
	Session domain.Session
	Tally   history.Tally
	AIMark  domain.Cell
}

// Options configures a Service. AIMark defaults to O and FirstPlayer to X;
// a zero ThinkDelay lets the opponent answer as soon as the timer fires.
type Options struct {
	Logger      *slog.Logger
	Recorder    history.Recorder
	ThinkDelay  time.Duration
	AIMark      domain.Cell
	FirstPlayer domain.Cell
}

type subscriber struct {
	mu     sync.Mutex
	closed bool
	ch     chan []byte
}

// send reports false when the subscriber's buffer is full.
func (s *subscriber) send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- b:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Service hosts one session per browser and drives the opponent.
type Service struct {
	mu       sync.Mutex
	store    storage.Store
	opponent Chooser
	recorder history.Recorder
	log      *slog.Logger
	subs     map[string]map[*subscriber]struct{}
	render   func(GameState) []byte

	thinkDelay  time.Duration
	aiMark      domain.Cell
	firstPlayer domain.Cell
	after       func(time.Duration, func())
}

// NewService creates a service backed by store, using opponent for AI moves.
func NewService(store storage.Store, opponent Chooser, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.AIMark != domain.X && opts.AIMark != domain.O {
		opts.AIMark = domain.O
	}
	if opts.FirstPlayer != domain.X && opts.FirstPlayer != domain.O {
		opts.FirstPlayer = domain.X
	}
	if opts.ThinkDelay < 0 {
		opts.ThinkDelay = 0
	}
	return &Service{
		store:       store,
		opponent:    opponent,
		recorder:    opts.Recorder,
		log:         opts.Logger.With("component", "app"),
		subs:        make(map[string]map[*subscriber]struct{}),
		render:      func(GameState) []byte { return nil },
		thinkDelay:  opts.ThinkDelay,
		aiMark:      opts.AIMark,
		firstPlayer: opts.FirstPlayer,
		after:       func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(GameState) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(GameState) []byte { return nil }
		return
	}
	s.render = renderer
}

// Open returns the session for id, creating a fresh two-player session if
// none exists yet.
func (s *Service) Open(ctx context.Context, id string) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.store.Load(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		sess = domain.New(domain.TwoPlayer, s.firstPlayer)
		if err = s.store.Save(ctx, id, sess); err != nil {
			return nil, fmt.Errorf("save new session: %w", err)
		}
		s.log.Debug("session created", "session", id)
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s.stateLocked(ctx, id, sess), nil
}

// Get returns the current state without creating anything.
func (s *Service) Get(ctx context.Context, id string) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.stateLocked(ctx, id, sess), nil
}

// Select applies a human move on index. A rejected move leaves the session
// untouched and returns the unchanged state together with the reason.
// In AI mode a move on the opponent's turn, including during the think
// delay, fails with ErrNotYourTurn. The browser version placed the
// opponent's marker for the human in that case; this is stricter on purpose.
func (s *Service) Select(ctx context.Context, id string, index int) (*GameState, error) {
	s.mu.Lock()
	sess, err := s.load(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if sess.VsAI && sess.Active && sess.Current == s.aiMark {
		st := s.stateLocked(ctx, id, sess)
		s.mu.Unlock()
		return st, ErrNotYourTurn
	}
	next, err := sess.Play(index)
	if err != nil {
		st := s.stateLocked(ctx, id, sess)
		s.mu.Unlock()
		s.log.Debug("move rejected", "session", id, "index", index, "error", err)
		return st, err
	}
	if err = s.commitLocked(ctx, id, next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.opponentToMove(next) {
		s.after(s.thinkDelay, func() { s.opponentMove(id) })
	}
	st := s.stateLocked(ctx, id, next)
	payload, subs := s.render(*st), s.copySubsLocked(id)
	s.mu.Unlock()

	s.broadcast(id, payload, subs)
	return st, nil
}

// Reset starts the session over, keeping its mode.
func (s *Service) Reset(ctx context.Context, id string) (*GameState, error) {
	return s.restart(ctx, id, func(sess domain.Session) domain.Session { return sess.Reset() })
}

// SetMode switches between two-player and AI mode. The board is always reset.
func (s *Service) SetMode(ctx context.Context, id string, mode domain.Mode) (*GameState, error) {
	return s.restart(ctx, id, func(sess domain.Session) domain.Session { return sess.SwitchMode(mode) })
}

func (s *Service) restart(ctx context.Context, id string, fn func(domain.Session) domain.Session) (*GameState, error) {
	s.mu.Lock()
	sess, err := s.load(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next := fn(sess)
	// the opponent opens straight away when it is due to start
	if s.opponentToMove(next) {
		next = s.playOpponent(id, next)
	}
	if err = s.commitLocked(ctx, id, next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	st := s.stateLocked(ctx, id, next)
	payload, subs := s.render(*st), s.copySubsLocked(id)
	s.mu.Unlock()

	s.broadcast(id, payload, subs)
	return st, nil
}

// opponentMove runs when the think delay expires. It always fires and acts
// on whatever the session looks like by then.
func (s *Service) opponentMove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	sess, err := s.load(ctx, id)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("opponent could not load session", "session", id, "error", err)
		return
	}
	if !s.opponentToMove(sess) {
		s.mu.Unlock()
		return
	}
	next := s.playOpponent(id, sess)
	if next == sess {
		s.mu.Unlock()
		return
	}
	if err = s.commitLocked(ctx, id, next); err != nil {
		s.mu.Unlock()
		s.log.Error("opponent move not saved", "session", id, "error", err)
		return
	}
	st := s.stateLocked(ctx, id, next)
	payload, subs := s.render(*st), s.copySubsLocked(id)
	s.mu.Unlock()

	s.broadcast(id, payload, subs)
}

func (s *Service) opponentToMove(sess domain.Session) bool {
	return sess.Active && sess.VsAI && sess.Current == s.aiMark
}

// playOpponent asks the opponent for a move and applies it. No move, or a
// move the session rejects, leaves sess unchanged.
func (s *Service) playOpponent(id string, sess domain.Session) domain.Session {
	if s.opponent == nil {
		return sess
	}
	idx, ok := s.opponent.ChooseMove(sess.Board, s.aiMark)
	if !ok {
		return sess
	}
	next, err := sess.Play(idx)
	if err != nil {
		s.log.Warn("opponent move rejected", "session", id, "index", idx, "error", err)
		return sess
	}
	s.log.Debug("opponent moved", "session", id, "index", idx)
	return next
}

// commitLocked saves sess and records it when the game just finished.
func (s *Service) commitLocked(ctx context.Context, id string, sess domain.Session) error {
	if err := s.store.Save(ctx, id, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if sess.Active || s.recorder == nil {
		return nil
	}
	if err := s.recorder.Record(ctx, id, sess); err != nil {
		s.log.Error("could not record result", "session", id, "error", err)
		return nil
	}
	s.log.Info("game finished", "session", id, "mode", sess.Mode(), "result", sess.Message())
	return nil
}

func (s *Service) load(ctx context.Context, id string) (domain.Session, error) {
	sess, err := s.store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return sess, ErrNotFound
	}
	if err != nil {
		return sess, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (s *Service) stateLocked(ctx context.Context, id string, sess domain.Session) *GameState {
	st := &GameState{ID: id, Session: sess, AIMark: s.aiMark}
	if s.recorder != nil {
		t, err := s.recorder.Tally(ctx, id)
		if err != nil {
			s.log.Warn("could not load tally", "session", id, "error", err)
		}
		st.Tally = t
	}
	return st
}

// Recent lists the latest finished games of a session, newest first.
func (s *Service) Recent(ctx context.Context, id string, limit int) ([]history.Result, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.Recent(ctx, id, limit)
}

// Subscribe registers a subscriber for a session. Returns a channel and an
// unsubscribe func; the subscription also ends with ctx.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			s.removeSubLocked(id, sub)
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub
}

// broadcast fans out payload; slow subscribers are closed and dropped.
func (s *Service) broadcast(id string, payload []byte, subs map[*subscriber]struct{}) {
	var toDrop []*subscriber
	for sub := range subs {
		if !sub.send(payload) {
			sub.close()
			toDrop = append(toDrop, sub)
		}
	}
	if len(toDrop) == 0 {
		return
	}
	s.mu.Lock()
	for _, sub := range toDrop {
		s.removeSubLocked(id, sub)
	}
	s.mu.Unlock()
}

func (s *Service) removeSubLocked(id string, sub *subscriber) {
	set, ok := s.subs[id]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(s.subs, id)
	}
}

func (s *Service) copySubsLocked(id string) map[*subscriber]struct{} {
	out := make(map[*subscriber]struct{})
	if set, ok := s.subs[id]; ok {
		for k := range set {
			out[k] = struct{}{}
		}
	}
	return out
}
