package hand

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lox/handengine/internal/cards"
)

// MaxSeats keeps a full board plus every hole card inside one deck.
const MaxSeats = (cards.DeckSize - 5) / 2

// Shuffler supplies the deck order. Implementations must be deterministic for
// a given hand so that replays reproduce the deal.
type Shuffler interface {
	Shuffle(deck []cards.Card) []cards.Card
	Reshuffle(deck []cards.Card, round int) []cards.Card
}

// Settler distributes the pot at showdown. It mutates stacks, clears the pot
// and fills State.Settlements, or returns an error without committing.
type Settler interface {
	Settle(s *State) error
}

// Seat is a player entering the hand with a stack.
type Seat struct {
	ID    string `json:"id" hcl:"id,label"`
	Stack int64  `json:"stack" hcl:"stack"`
}

// Config describes a hand before any action is taken.
type Config struct {
	HandID string `json:"handId"`
	Seats  []Seat `json:"seats"`
	// BigBlind caps a single post; 0 disables the cap.
	BigBlind int64 `json:"bigBlind,omitempty"`
	// MaxBet caps a single bet or raise; 0 disables the cap.
	MaxBet int64 `json:"maxBet,omitempty"`
}

// Validate checks seat ids and stacks.
func (c Config) Validate() error {
	if len(c.Seats) < 2 {
		return fmt.Errorf("hand: need at least 2 seats, got %d", len(c.Seats))
	}
	if len(c.Seats) > MaxSeats {
		return fmt.Errorf("hand: at most %d seats, got %d", MaxSeats, len(c.Seats))
	}
	seen := make(map[string]bool, len(c.Seats))
	for _, s := range c.Seats {
		if s.ID == "" {
			return errors.New("hand: empty seat id")
		}
		if seen[s.ID] {
			return fmt.Errorf("hand: duplicate seat %q", s.ID)
		}
		seen[s.ID] = true
		if s.Stack <= 0 {
			return fmt.Errorf("hand: seat %q has no chips", s.ID)
		}
	}
	if c.BigBlind < 0 || c.MaxBet < 0 {
		return errors.New("hand: negative limit")
	}
	return nil
}

// Clone returns a copy that shares no seats with c.
func (c Config) Clone() Config {
	c.Seats = slices.Clone(c.Seats)
	return c
}

// InitialState is the WAIT_BLINDS state for cfg.
func (c Config) InitialState() State {
	s := State{
		HandID:         c.HandID,
		Phase:          PhaseWaitBlinds,
		Street:         Preflop,
		Players:        make([]Player, len(c.Seats)),
		Deck:           []cards.Card{},
		CommunityCards: []cards.Card{},
		SidePots:       []SidePot{},
	}
	for i, seat := range c.Seats {
		s.Players[i] = Player{ID: seat.ID, Stack: seat.Stack, Initial: seat.Stack}
	}
	return s
}

// Machine applies actions to one hand. It is not safe for concurrent use;
// the table actor serializes access.
type Machine struct {
	cfg      Config
	shuffler Shuffler
	settler  Settler
	state    State
}

// NewMachine returns a machine in WAIT_BLINDS.
func NewMachine(cfg Config, shuffler Shuffler, settler Settler) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if shuffler == nil {
		return nil, errors.New("hand: shuffler is required")
	}
	return &Machine{
		cfg:      cfg,
		shuffler: shuffler,
		settler:  settler,
		state:    cfg.InitialState(),
	}, nil
}

// Config returns the configuration the machine was built with.
func (m *Machine) Config() Config { return m.cfg }

// State returns a deep copy of the current state.
func (m *Machine) State() State { return m.state.Clone() }

// Restore resets the machine to s, a state it previously returned. It undoes
// a transition whose log record could not be made durable.
func (m *Machine) Restore(s State) { m.state = s.Clone() }

// Apply validates and applies a, returning a copy of the new state. On error
// the machine is unchanged.
func (m *Machine) Apply(a Action) (State, error) {
	work := m.state.Clone()
	before := work.Chips()

	if err := m.step(&work, a); err != nil {
		return m.state.Clone(), err
	}
	if after := work.Chips(); after != before {
		return m.state.Clone(), fmt.Errorf("%w: chips %d before %s, %d after", ErrInvariant, before, a, after)
	}
	for _, p := range work.Players {
		if p.Stack < 0 {
			return m.state.Clone(), fmt.Errorf("%w: negative stack for %s", ErrInvariant, p.ID)
		}
	}

	m.state = work
	return m.state.Clone(), nil
}

func (m *Machine) step(s *State, a Action) error {
	if !a.Kind.Valid() {
		return reject(s, a, "unknown action type %q", a.Kind)
	}

	switch s.Phase {
	case PhaseWaitBlinds:
		if a.Kind != KindPostBlind {
			return reject(s, a, "only blinds may be posted")
		}
		return m.postBlind(s, a)

	case PhaseDeal:
		if a.Kind != KindNext {
			return reject(s, a, "waiting for cards")
		}
		return m.deal(s)

	case PhaseBettingRound:
		switch a.Kind {
		case KindBet, KindRaise, KindPostBlind:
			return m.wager(s, a)
		case KindCall:
			return m.call(s, a)
		case KindCheck:
			return m.check(s, a)
		case KindFold:
			return m.fold(s, a)
		case KindNext:
			m.closeRound(s)
			if s.Street == River {
				s.Street = Showdown
				s.Phase = PhaseShowdown
			} else {
				s.Street = s.Street.next()
				s.Phase = PhaseDeal
			}
			return nil
		}

	case PhaseShowdown:
		if a.Kind != KindNext {
			return reject(s, a, "hand is at showdown")
		}
		if m.settler == nil {
			return fmt.Errorf("%w: no settler configured", ErrInvariant)
		}
		if err := m.settler.Settle(s); err != nil {
			return err
		}
		s.Phase = PhaseSettle
		return nil

	case PhaseSettle:
		return reject(s, a, "hand is settled")
	}
	return reject(s, a, "unhandled action")
}

// actor resolves the acting player and checks they can still act.
func actor(s *State, a Action) (*Player, error) {
	if a.PlayerID == "" {
		return nil, reject(s, a, "missing player")
	}
	i := s.Player(a.PlayerID)
	if i < 0 {
		return nil, reject(s, a, "unknown player %q", a.PlayerID)
	}
	p := &s.Players[i]
	if p.Folded {
		return nil, reject(s, a, "player has folded")
	}
	return p, nil
}

// commit moves up to amount from the player's stack into the pot.
func commit(s *State, p *Player, amount int64) {
	amount = min(amount, p.Stack)
	p.Stack -= amount
	p.Bet += amount
	p.Committed += amount
	s.Pot += amount
	if p.Stack == 0 {
		p.AllIn = true
	}
	if p.Bet > s.CurrentBet {
		s.CurrentBet = p.Bet
	}
}

func (m *Machine) postBlind(s *State, a Action) error {
	p, err := actor(s, a)
	if err != nil {
		return err
	}
	if p.Posted {
		return reject(s, a, "blind already posted")
	}
	if a.Amount <= 0 {
		return reject(s, a, "amount must be positive")
	}
	if m.cfg.BigBlind > 0 && a.Amount > m.cfg.BigBlind {
		return reject(s, a, "blind exceeds big blind %d", m.cfg.BigBlind)
	}
	commit(s, p, a.Amount)
	p.Posted = true

	for _, other := range s.Players {
		if !other.Posted {
			return nil
		}
	}

	s.Deck = m.shuffler.Shuffle(cards.Standard())
	for i := range s.Players {
		hole := make([]cards.Card, 0, 2)
		for range 2 {
			c, err := pop(s)
			if err != nil {
				return err
			}
			hole = append(hole, c)
		}
		s.Players[i].HoleCards = hole
	}
	s.Phase = PhaseDeal
	return nil
}

func pop(s *State) (cards.Card, error) {
	if len(s.Deck) == 0 {
		return 0, fmt.Errorf("%w: deck exhausted", ErrInvariant)
	}
	c := s.Deck[len(s.Deck)-1]
	s.Deck = s.Deck[:len(s.Deck)-1]
	return c, nil
}

func (m *Machine) deal(s *State) error {
	need := s.Street.boardCards()
	if need > len(s.Deck) {
		s.Reshuffles++
		inPlay := make([]cards.Card, 0, 2*len(s.Players)+len(s.CommunityCards))
		for _, p := range s.Players {
			inPlay = append(inPlay, p.HoleCards...)
		}
		inPlay = append(inPlay, s.CommunityCards...)
		s.Deck = m.shuffler.Reshuffle(cards.Without(inPlay), s.Reshuffles)
		if need > len(s.Deck) {
			return fmt.Errorf("%w: %d cards left for %s", ErrInvariant, len(s.Deck), s.Street)
		}
	}
	for range need {
		c, err := pop(s)
		if err != nil {
			return err
		}
		s.CommunityCards = append(s.CommunityCards, c)
	}
	s.Phase = PhaseBettingRound
	return nil
}

func (m *Machine) wager(s *State, a Action) error {
	p, err := actor(s, a)
	if err != nil {
		return err
	}
	if p.AllIn {
		return reject(s, a, "player is all-in")
	}
	if a.Amount <= 0 {
		return reject(s, a, "amount must be positive")
	}
	if a.Amount > p.Stack {
		return reject(s, a, "amount %d exceeds stack %d", a.Amount, p.Stack)
	}

	switch a.Kind {
	case KindBet, KindRaise:
		if a.Kind == KindRaise && s.CurrentBet == 0 {
			return reject(s, a, "nothing to raise")
		}
		if m.cfg.MaxBet > 0 && a.Amount > m.cfg.MaxBet {
			return reject(s, a, "amount exceeds table limit %d", m.cfg.MaxBet)
		}
		allIn := a.Amount == p.Stack
		if p.Bet+a.Amount <= s.CurrentBet && !allIn {
			return reject(s, a, "commitment %d does not exceed current bet %d", p.Bet+a.Amount, s.CurrentBet)
		}
	case KindPostBlind:
		if m.cfg.BigBlind > 0 && a.Amount > m.cfg.BigBlind {
			return reject(s, a, "blind exceeds big blind %d", m.cfg.BigBlind)
		}
	}

	commit(s, p, a.Amount)
	return nil
}

func (m *Machine) call(s *State, a Action) error {
	p, err := actor(s, a)
	if err != nil {
		return err
	}
	if p.AllIn {
		return reject(s, a, "player is all-in")
	}
	owed := min(s.CurrentBet-p.Bet, p.Stack)
	if owed <= 0 {
		return reject(s, a, "nothing to call")
	}
	if a.Amount != 0 && a.Amount != owed {
		return reject(s, a, "call amount is %d", owed)
	}
	commit(s, p, owed)
	return nil
}

func (m *Machine) check(s *State, a Action) error {
	p, err := actor(s, a)
	if err != nil {
		return err
	}
	if p.Bet < s.CurrentBet && !p.AllIn {
		return reject(s, a, "cannot check, must call %d", s.CurrentBet-p.Bet)
	}
	return nil
}

func (m *Machine) fold(s *State, a Action) error {
	p, err := actor(s, a)
	if err != nil {
		return err
	}
	if p.AllIn {
		return reject(s, a, "player is all-in")
	}
	p.Folded = true

	if s.Live() < 2 {
		m.closeRound(s)
		s.Street = Showdown
		s.Phase = PhaseShowdown
	}
	return nil
}

// closeRound collects the street into layered pots and resets bets.
func (m *Machine) closeRound(s *State) {
	s.SidePots = BuildPots(s.Players)
	for i := range s.Players {
		s.Players[i].Bet = 0
	}
	s.CurrentBet = 0
}
