package commands

import (
	"fmt"
	"strings"
	"sync"

	cerrors "github.com/p-blackswan/chatkeeper/internal/errors"
)

var (
	errAuctionClosed = fmt.Errorf("%w: no auction is open", cerrors.ErrInvalidArgument)
	errAuctionOpen   = fmt.Errorf("%w: an auction is already open", cerrors.ErrInvalidArgument)
	errBidTooLow     = fmt.Errorf("%w: bid must beat the current high bid", cerrors.ErrInvalidArgument)
)

// Auction accepts currency bids on a single item. Bids are checked against
// the bidder's balance when placed and again when the winner pays on close.
type Auction struct {
	mu         sync.Mutex
	open       bool
	item       string
	highBid    int64
	highBidder string
}

// NewAuction creates a closed auction.
func NewAuction() *Auction {
	return &Auction{}
}

// Open starts an auction for item.
func (a *Auction) Open(item string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return errAuctionOpen
	}
	item = strings.TrimSpace(item)
	if item == "" {
		return fmt.Errorf("%w: auction needs an item", cerrors.ErrInvalidArgument)
	}
	a.open = true
	a.item = item
	a.highBid = 0
	a.highBidder = ""
	return nil
}

// Bid places amount for user. balance is the user's current currency.
func (a *Auction) Bid(user string, amount, balance int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return errAuctionClosed
	}
	if amount <= 0 || amount <= a.highBid {
		return errBidTooLow
	}
	if amount > balance {
		return cerrors.ErrInsufficientPoints
	}
	a.highBid = amount
	a.highBidder = user
	return nil
}

// AuctionResult is the outcome of a closed auction. Winner is empty when no
// bids were placed.
type AuctionResult struct {
	Item   string
	Winner string
	Amount int64
}

// Close ends the auction and returns its result.
func (a *Auction) Close() (AuctionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return AuctionResult{}, errAuctionClosed
	}
	res := AuctionResult{Item: a.item, Winner: a.highBidder, Amount: a.highBid}
	a.open = false
	a.item = ""
	a.highBid = 0
	a.highBidder = ""
	return res, nil
}

// Leader returns the current item, high bidder and bid.
func (a *Auction) Leader() (item, bidder string, amount int64, open bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.item, a.highBidder, a.highBid, a.open
}
