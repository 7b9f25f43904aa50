package commands

import (
	"fmt"
	"strings"
	"sync"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

var (
	errPollNotOpen      = fmt.Errorf("%w: no poll is open", cerrors.ErrInvalidArgument)
	errPollOpen         = fmt.Errorf("%w: a poll is already open", cerrors.ErrInvalidArgument)
	errPollNotDrafting  = fmt.Errorf("%w: start a poll with a title first", cerrors.ErrInvalidArgument)
	errPollFewOptions   = fmt.Errorf("%w: a poll needs at least two options", cerrors.ErrInvalidArgument)
	errPollAlreadyVoted = fmt.Errorf("%w: already voted", cerrors.ErrInvalidArgument)
)

type pollState int

const (
	pollIdle pollState = iota
	pollDrafting
	pollOpen
	pollClosed
)

// Poll is a single-choice vote. Each user votes at most once while open.
type Poll struct {
	mu      sync.Mutex
	state   pollState
	title   string
	options []string
	votes   map[string]int
}

// NewPoll creates an idle poll.
func NewPoll() *Poll {
	return &Poll{votes: make(map[string]int)}
}

// Draft starts a new poll with title, discarding any finished one.
func (p *Poll) Draft(title string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pollOpen {
		return errPollOpen
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: poll needs a title", cerrors.ErrInvalidArgument)
	}
	p.state = pollDrafting
	p.title = title
	p.options = nil
	p.votes = make(map[string]int)
	return nil
}

// AddOption appends an option to a drafting poll and returns its number.
func (p *Poll) AddOption(option string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pollDrafting {
		return 0, errPollNotDrafting
	}
	option = strings.TrimSpace(option)
	if option == "" {
		return 0, fmt.Errorf("%w: empty poll option", cerrors.ErrInvalidArgument)
	}
	p.options = append(p.options, option)
	return len(p.options), nil
}

// Open starts accepting votes.
func (p *Poll) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case pollOpen:
		return errPollOpen
	case pollDrafting:
	default:
		return errPollNotDrafting
	}
	if len(p.options) < 2 {
		return errPollFewOptions
	}
	p.state = pollOpen
	return nil
}

// Vote records user's choice of the 1-based option n.
func (p *Poll) Vote(user string, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pollOpen {
		return errPollNotOpen
	}
	if n < 1 || n > len(p.options) {
		return fmt.Errorf("%w: option %d does not exist", cerrors.ErrInvalidArgument, n)
	}
	if _, ok := p.votes[user]; ok {
		return errPollAlreadyVoted
	}
	p.votes[user] = n - 1
	return nil
}

// Close stops voting and returns the results.
func (p *Poll) Close() (PollResults, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pollOpen {
		return PollResults{}, errPollNotOpen
	}
	p.state = pollClosed
	return p.resultsLocked(), nil
}

// Results returns the current tally.
func (p *Poll) Results() (PollResults, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pollIdle {
		return PollResults{}, false
	}
	return p.resultsLocked(), true
}

func (p *Poll) resultsLocked() PollResults {
	res := PollResults{
		Title:   p.title,
		Options: append([]string(nil), p.options...),
		Counts:  make([]int, len(p.options)),
		Open:    p.state == pollOpen,
	}
	for _, idx := range p.votes {
		res.Counts[idx]++
	}
	return res
}

// PollResults is a tally snapshot.
type PollResults struct {
	Title   string
	Options []string
	Counts  []int
	Open    bool
}

func (r PollResults) String() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString(":")
	for i, opt := range r.Options {
		fmt.Fprintf(&b, " %d) %s [%d]", i+1, opt, r.Counts[i])
	}
	return b.String()
}
