package commands

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

var (
	errRaffleClosed    = fmt.Errorf("%w: no raffle is open", cerrors.ErrInvalidArgument)
	errRaffleOpen      = fmt.Errorf("%w: a raffle is already open", cerrors.ErrInvalidArgument)
	errRaffleNoEntries = errors.New("raffle has no entrants")
)

type raffleState int

const (
	raffleIdle raffleState = iota
	raffleOpen
	raffleClosed
)

// Raffle collects entrants while open and draws one uniformly at random.
type Raffle struct {
	mu       sync.Mutex
	state    raffleState
	entrants []string
	entered  map[string]struct{}
	rng      *rand.Rand
}

// NewRaffle creates an idle raffle drawing from rng.
func NewRaffle(rng *rand.Rand) *Raffle {
	return &Raffle{rng: rng, entered: make(map[string]struct{})}
}

// Open starts a new raffle, discarding entrants of a previous one.
func (r *Raffle) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == raffleOpen {
		return errRaffleOpen
	}
	r.state = raffleOpen
	r.entrants = nil
	r.entered = make(map[string]struct{})
	return nil
}

// Enter adds user to the open raffle. It returns false if the user had
// already entered.
func (r *Raffle) Enter(user string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != raffleOpen {
		return false, errRaffleClosed
	}
	if _, ok := r.entered[user]; ok {
		return false, nil
	}
	r.entered[user] = struct{}{}
	r.entrants = append(r.entrants, user)
	return true, nil
}

// Close stops accepting entrants and returns how many entered.
func (r *Raffle) Close() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != raffleOpen {
		return 0, errRaffleClosed
	}
	r.state = raffleClosed
	return len(r.entrants), nil
}

// Draw picks a winner, closing the raffle if it is still open. The winner
// is removed so a redraw picks someone else.
func (r *Raffle) Draw() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == raffleIdle {
		return "", errRaffleClosed
	}
	if len(r.entrants) == 0 {
		return "", errRaffleNoEntries
	}
	r.state = raffleClosed
	i := r.rng.Intn(len(r.entrants))
	winner := r.entrants[i]
	r.entrants = append(r.entrants[:i], r.entrants[i+1:]...)
	delete(r.entered, winner)
	return winner, nil
}

// Entrants returns the number of entrants.
func (r *Raffle) Entrants() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entrants)
}

// IsOpen reports whether entries are being accepted.
func (r *Raffle) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == raffleOpen
}
