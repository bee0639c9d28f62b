package auction

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-service/internal/entity"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists for product")
	ErrAuctionClosed   = errors.New("auction is closed")
	ErrAuctionExpired  = errors.New("auction deadline has passed")
	ErrBidTooLow       = errors.New("bid must exceed the current highest bid")
	ErrSelfBid         = errors.New("store staff cannot bid on their own auction")
)

// Outcome is the recorded result of a closed auction. Close returns the same
// outcome on every call after the first.
type Outcome struct {
	Status   entity.AuctionStatus `json:"status"`
	WinnerID int                  `json:"winner_id,omitempty"`
	Amount   decimal.Decimal      `json:"amount"`
}

// slot pairs an auction with its own lock, so bids on the same product are
// serialized while bids on different products proceed independently.
type slot struct {
	mu      sync.Mutex
	auction *entity.Auction
}

// Engine arbitrates bids across all live auctions, keyed by product id.
// State changes are serialized per auction, never behind a global lock; the
// engine-level lock only guards the slot table.
type Engine struct {
	mu    sync.RWMutex
	slots map[int]*slot

	clockMu sync.RWMutex
	now     func() time.Time
}

func NewEngine() *Engine {
	return &Engine{
		slots: make(map[int]*slot),
		now:   time.Now,
	}
}

// SetNow replaces the engine clock. Used by tests to control the deadline.
func (e *Engine) SetNow(now func() time.Time) {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.now = now
}

func (e *Engine) clock() time.Time {
	e.clockMu.RLock()
	defer e.clockMu.RUnlock()
	return e.now()
}

// Open registers an auction with the engine. Closed auctions may be loaded
// too; they only serve as read-only history.
func (e *Engine) Open(a *entity.Auction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.slots[a.ProductID]; exists {
		return ErrAuctionExists
	}
	e.slots[a.ProductID] = &slot{auction: a}
	return nil
}

func (e *Engine) slotFor(productID int) (*slot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.slots[productID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return s, nil
}

// Snapshot returns a copy of the auction's current state.
func (e *Engine) Snapshot(productID int) (entity.Auction, error) {
	s, err := e.slotFor(productID)
	if err != nil {
		return entity.Auction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.auction
	copied.Bids = append([]entity.Bid(nil), s.auction.Bids...)
	return copied, nil
}

// PlaceBid submits a bid on behalf of bidderID. The deadline check runs
// before everything else about the bid itself, so a bid arriving at or after
// the end time is always rejected as expired, never accepted. On success the
// highest bid and bid log are replaced atomically, the accepted bid is
// returned to the caller for persistence, and the previous highest bidder,
// if any, gets exactly one outbid event.
func (e *Engine) PlaceBid(productID, bidderID int, amount decimal.Decimal, staff []int) (entity.Bid, []entity.AuctionEvent, error) {
	s, err := e.slotFor(productID)
	if err != nil {
		return entity.Bid{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.auction
	if a.Status != entity.AuctionOpen {
		return entity.Bid{}, nil, ErrAuctionClosed
	}
	now := e.clock()
	if !now.Before(a.EndTime) {
		return entity.Bid{}, nil, ErrAuctionExpired
	}
	for _, id := range staff {
		if id == bidderID {
			return entity.Bid{}, nil, ErrSelfBid
		}
	}
	if !amount.GreaterThan(a.HighestBid) {
		return entity.Bid{}, nil, ErrBidTooLow
	}

	previousBidder := a.HighestBidderID
	bid := entity.Bid{BidderID: bidderID, Amount: amount, PlacedAt: now}
	a.HighestBid = amount
	a.HighestBidderID = bidderID
	a.Bids = append(a.Bids, bid)

	var events []entity.AuctionEvent
	if previousBidder != 0 {
		events = append(events, entity.AuctionEvent{
			Type:      entity.EventOutbid,
			UserID:    previousBidder,
			ProductID: a.ProductID,
			StoreID:   a.StoreID,
			Amount:    amount,
		})
	}
	return bid, events, nil
}

// Close ends the auction. The first call records the outcome and produces
// the notification events; every later call returns the recorded outcome
// with no events, so a deadline sweep racing a manual close never
// double-fires side effects.
func (e *Engine) Close(productID int, staff []int) (Outcome, []entity.AuctionEvent, error) {
	s, err := e.slotFor(productID)
	if err != nil {
		return Outcome{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.auction
	if a.Status != entity.AuctionOpen {
		return Outcome{
			Status:   a.Status,
			WinnerID: a.HighestBidderID,
			Amount:   a.HighestBid,
		}, nil, nil
	}

	if len(a.Bids) == 0 {
		a.Status = entity.AuctionNoBids
		events := make([]entity.AuctionEvent, 0, len(staff))
		for _, ownerID := range staff {
			events = append(events, entity.AuctionEvent{
				Type:      entity.EventNoBids,
				UserID:    ownerID,
				ProductID: a.ProductID,
				StoreID:   a.StoreID,
				Amount:    a.BasePrice,
			})
		}
		return Outcome{Status: entity.AuctionNoBids, Amount: a.BasePrice}, events, nil
	}

	a.Status = entity.AuctionSold
	events := make([]entity.AuctionEvent, 0, len(staff)+1)
	events = append(events, entity.AuctionEvent{
		Type:      entity.EventWon,
		UserID:    a.HighestBidderID,
		ProductID: a.ProductID,
		StoreID:   a.StoreID,
		Amount:    a.HighestBid,
		WinnerID:  a.HighestBidderID,
	})
	for _, ownerID := range staff {
		events = append(events, entity.AuctionEvent{
			Type:      entity.EventSold,
			UserID:    ownerID,
			ProductID: a.ProductID,
			StoreID:   a.StoreID,
			Amount:    a.HighestBid,
			WinnerID:  a.HighestBidderID,
		})
	}
	return Outcome{
		Status:   entity.AuctionSold,
		WinnerID: a.HighestBidderID,
		Amount:   a.HighestBid,
	}, events, nil
}

// Extend pushes the deadline out by extraDays. Only open auctions can be
// extended.
func (e *Engine) Extend(productID, extraDays int) (time.Time, error) {
	s, err := e.slotFor(productID)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.auction
	if a.Status != entity.AuctionOpen {
		return time.Time{}, ErrAuctionClosed
	}
	a.EndTime = a.EndTime.Add(time.Duration(extraDays) * 24 * time.Hour)
	return a.EndTime, nil
}

// Expired lists open auctions whose deadline has passed. The sweep closes
// each one through Close, so a manual close racing the sweep stays safe.
func (e *Engine) Expired() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock()
	var expired []int
	for productID, s := range e.slots {
		s.mu.Lock()
		if s.auction.Status == entity.AuctionOpen && !now.Before(s.auction.EndTime) {
			expired = append(expired, productID)
		}
		s.mu.Unlock()
	}
	return expired
}

// WonPrice returns the winning bid when the user won the product's auction.
// Pricing uses it as the effective unit price in place of the base price.
func (e *Engine) WonPrice(productID, userID int) (decimal.Decimal, bool) {
	s, err := e.slotFor(productID)
	if err != nil {
		return decimal.Zero, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.auction
	if a.Status == entity.AuctionSold && a.HighestBidderID == userID {
		return a.HighestBid, true
	}
	return decimal.Zero, false
}
