package domain

import "fmt"

// Mode selects who plays the second marker.
type Mode string

const (
	TwoPlayer Mode = "two"
	VsAI      Mode = "ai"
)

// ParseMode accepts "two" or "ai".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case TwoPlayer, VsAI:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// State is the lifecycle position of a session.
type State uint8

const (
	Idle State = iota
	InProgress
	Won
	Drawn
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Won:
		return "won"
	case Drawn:
		return "draw"
	default:
		return "idle"
	}
}

// Session holds one game from start until reset. Methods never mutate the
// receiver; they return the next session.
type Session struct {
	Board       Board   `json:"board"`
	Current     Cell    `json:"current"`
	FirstPlayer Cell    `json:"first_player"`
	Active      bool    `json:"active"`
	VsAI        bool    `json:"vs_ai"`
	Outcome     Outcome `json:"outcome"`
}

// New returns a fresh session. first defaults to X when Empty.
func New(mode Mode, first Cell) Session {
	if first != X && first != O {
		first = X
	}
	return Session{
		Current:     first,
		FirstPlayer: first,
		Active:      true,
		VsAI:        mode == VsAI,
	}
}

// Mode reports the session's game mode.
func (s Session) Mode() Mode {
	if s.VsAI {
		return VsAI
	}
	return TwoPlayer
}

// Play places the current player's marker on index. On a win or draw the
// session becomes inactive and the turn is kept; otherwise the turn passes.
// A rejected move returns the session unchanged.
func (s Session) Play(index int) (Session, error) {
	if !s.Active {
		return s, ErrGameOver
	}
	b, err := s.Board.Place(index, s.Current)
	if err != nil {
		return s, err
	}
	s.Board = b
	s.Outcome = Evaluate(b)
	switch s.Outcome.Kind {
	case Win, Draw:
		s.Active = false
	default:
		s.Current = s.Current.Opponent()
	}
	return s, nil
}

// Reset starts over with the same mode and starting player.
func (s Session) Reset() Session {
	return New(s.Mode(), s.FirstPlayer)
}

// SwitchMode always resets, whatever the current state.
func (s Session) SwitchMode(m Mode) Session {
	return New(m, s.FirstPlayer)
}

// State derives the lifecycle position from the board and outcome.
func (s Session) State() State {
	switch {
	case s.Outcome.Kind == Win:
		return Won
	case s.Outcome.Kind == Draw:
		return Drawn
	case s.Board.Count() == 0:
		return Idle
	default:
		return InProgress
	}
}

// Message is the outcome text shown to players, empty while playing.
func (s Session) Message() string {
	switch s.Outcome.Kind {
	case Win:
		return fmt.Sprintf("Player %s wins!", s.Outcome.Winner)
	case Draw:
		return "It's a draw!"
	default:
		return ""
	}
}
