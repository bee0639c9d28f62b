package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/entity"
)

func money(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}

func newTestEngine(t *testing.T, base int, endsIn time.Duration) (*Engine, time.Time) {
	t.Helper()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()
	e.SetNow(func() time.Time { return start })
	err := e.Open(&entity.Auction{
		ProductID:  1,
		StoreID:    10,
		BasePrice:  money(base),
		HighestBid: money(base),
		EndTime:    start.Add(endsIn),
		Status:     entity.AuctionOpen,
	})
	require.NoError(t, err)
	return e, start
}

func TestOpenRejectsDuplicate(t *testing.T) {
	e, start := newTestEngine(t, 50, time.Hour)
	err := e.Open(&entity.Auction{ProductID: 1, EndTime: start.Add(time.Hour), Status: entity.AuctionOpen})
	assert.ErrorIs(t, err, ErrAuctionExists)
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	e := NewEngine()
	_, _, err := e.PlaceBid(42, 7, money(10), nil)
	assert.ErrorIs(t, err, ErrAuctionNotFound)
}

func TestPlaceBidReturnsAcceptedBid(t *testing.T) {
	e, start := newTestEngine(t, 50, time.Hour)

	bid, _, err := e.PlaceBid(1, 100, money(60), nil)
	require.NoError(t, err)
	assert.Equal(t, 100, bid.BidderID)
	assert.True(t, bid.Amount.Equal(money(60)))
	assert.Equal(t, start, bid.PlacedAt)
}

func TestHigherBidWinsAndOutbidsPrevious(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)

	_, events, err := e.PlaceBid(1, 100, money(60), nil)
	require.NoError(t, err)
	assert.Empty(t, events) // nobody to outbid yet

	_, events, err = e.PlaceBid(1, 200, money(80), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.EventOutbid, events[0].Type)
	assert.Equal(t, 100, events[0].UserID)
	assert.True(t, events[0].Amount.Equal(money(80)))

	a, err := e.Snapshot(1)
	require.NoError(t, err)
	assert.True(t, a.HighestBid.Equal(money(80)))
	assert.Equal(t, 200, a.HighestBidderID)
	require.Len(t, a.Bids, 2)
}

func TestLowOrEqualBidRejected(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)

	_, _, err := e.PlaceBid(1, 100, money(60), nil)
	require.NoError(t, err)

	// equal to the highest: rejected
	_, _, err = e.PlaceBid(1, 200, money(60), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)
	// below: rejected
	_, _, err = e.PlaceBid(1, 200, money(55), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)

	a, err := e.Snapshot(1)
	require.NoError(t, err)
	assert.True(t, a.HighestBid.Equal(money(60)))
	assert.Equal(t, 100, a.HighestBidderID)
}

func TestFirstBidMustExceedBasePrice(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)

	_, _, err := e.PlaceBid(1, 100, money(50), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)
	_, _, err = e.PlaceBid(1, 100, money(49), nil)
	assert.ErrorIs(t, err, ErrBidTooLow)
}

func TestSelfBidForbidden(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)

	_, _, err := e.PlaceBid(1, 7, money(60), []int{7, 8})
	assert.ErrorIs(t, err, ErrSelfBid)
}

func TestBidAtDeadlineRejected(t *testing.T) {
	e, start := newTestEngine(t, 50, time.Hour)

	// exactly at the deadline: expired, regardless of amount
	e.SetNow(func() time.Time { return start.Add(time.Hour) })
	_, _, err := e.PlaceBid(1, 100, money(1000), nil)
	assert.ErrorIs(t, err, ErrAuctionExpired)

	e.SetNow(func() time.Time { return start.Add(2 * time.Hour) })
	_, _, err = e.PlaceBid(1, 100, money(1000), nil)
	assert.ErrorIs(t, err, ErrAuctionExpired)
}

func TestCloseSoldScenario(t *testing.T) {
	// base 50, bids 60 (A) then 80 (B), close after deadline:
	// B wins at 80, A got one outbid event, staff each get one sold event.
	e, start := newTestEngine(t, 50, time.Hour)
	userA, userB := 100, 200

	_, _, err := e.PlaceBid(1, userA, money(60), nil)
	require.NoError(t, err)
	_, events, err := e.PlaceBid(1, userB, money(80), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, userA, events[0].UserID)
	assert.True(t, events[0].Amount.Equal(money(80)))

	e.SetNow(func() time.Time { return start.Add(2 * time.Hour) })
	outcome, closeEvents, err := e.Close(1, []int{7, 8})
	require.NoError(t, err)
	assert.Equal(t, entity.AuctionSold, outcome.Status)
	assert.Equal(t, userB, outcome.WinnerID)
	assert.True(t, outcome.Amount.Equal(money(80)))

	var won, sold int
	for _, ev := range closeEvents {
		switch ev.Type {
		case entity.EventWon:
			won++
			assert.Equal(t, userB, ev.UserID)
		case entity.EventSold:
			sold++
			assert.Equal(t, userB, ev.WinnerID)
			assert.True(t, ev.Amount.Equal(money(80)))
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 2, sold) // one per staff member
}

func TestCloseNoBids(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)

	outcome, events, err := e.Close(1, []int{7})
	require.NoError(t, err)
	assert.Equal(t, entity.AuctionNoBids, outcome.Status)
	assert.Equal(t, 0, outcome.WinnerID)
	assert.True(t, outcome.Amount.Equal(money(50)))
	require.Len(t, events, 1)
	assert.Equal(t, entity.EventNoBids, events[0].Type)
	assert.True(t, events[0].Amount.Equal(money(50)))
}

func TestCloseIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)
	_, _, err := e.PlaceBid(1, 100, money(60), nil)
	require.NoError(t, err)

	first, firstEvents, err := e.Close(1, []int{7})
	require.NoError(t, err)
	assert.NotEmpty(t, firstEvents)

	second, secondEvents, err := e.Close(1, []int{7})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Empty(t, secondEvents) // side effects only on the first close
}

func TestBidAfterCloseRejected(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)
	_, _, err := e.Close(1, nil)
	require.NoError(t, err)

	_, _, err = e.PlaceBid(1, 100, money(60), nil)
	assert.ErrorIs(t, err, ErrAuctionClosed)
}

func TestExtendOnlyWhileOpen(t *testing.T) {
	e, start := newTestEngine(t, 50, time.Hour)

	endTime, err := e.Extend(1, 2)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour+48*time.Hour), endTime)

	_, _, err = e.Close(1, nil)
	require.NoError(t, err)
	_, err = e.Extend(1, 1)
	assert.ErrorIs(t, err, ErrAuctionClosed)
}

func TestExpiredListsOnlyPastDeadline(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()
	e.SetNow(func() time.Time { return start })

	require.NoError(t, e.Open(&entity.Auction{ProductID: 1, EndTime: start.Add(time.Minute), Status: entity.AuctionOpen}))
	require.NoError(t, e.Open(&entity.Auction{ProductID: 2, EndTime: start.Add(time.Hour), Status: entity.AuctionOpen}))

	assert.Empty(t, e.Expired())

	e.SetNow(func() time.Time { return start.Add(30 * time.Minute) })
	assert.Equal(t, []int{1}, e.Expired())

	// closing removes it from the sweep's view
	_, _, err := e.Close(1, nil)
	require.NoError(t, err)
	assert.Empty(t, e.Expired())
}

func TestWonPrice(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)
	_, _, err := e.PlaceBid(1, 100, money(80), nil)
	require.NoError(t, err)

	// auction still open: no won price yet
	_, ok := e.WonPrice(1, 100)
	assert.False(t, ok)

	_, _, err = e.Close(1, nil)
	require.NoError(t, err)

	price, ok := e.WonPrice(1, 100)
	assert.True(t, ok)
	assert.True(t, price.Equal(money(80)))

	_, ok = e.WonPrice(1, 999)
	assert.False(t, ok)
}

func TestConcurrentBidsNeverLoseUpdates(t *testing.T) {
	e, _ := newTestEngine(t, 0, time.Hour)

	const bidders = 64
	var wg sync.WaitGroup
	accepted := make(chan decimal.Decimal, bidders)

	for i := 1; i <= bidders; i++ {
		wg.Add(1)
		go func(bidder int) {
			defer wg.Done()
			bid, _, err := e.PlaceBid(1, bidder, money(bidder), nil)
			if err == nil {
				// the returned bid is the caller's own accepted bid, never
				// a later racing one
				assert.Equal(t, bidder, bid.BidderID)
				assert.True(t, bid.Amount.Equal(money(bidder)))
				accepted <- money(bidder)
			}
		}(i)
	}
	wg.Wait()
	close(accepted)

	a, err := e.Snapshot(1)
	require.NoError(t, err)

	// the bid log must be strictly increasing: no lost updates, no ties
	for i := 1; i < len(a.Bids); i++ {
		assert.True(t, a.Bids[i].Amount.GreaterThan(a.Bids[i-1].Amount))
	}
	// every accepted bid is in the log, and the highest accepted bid won
	assert.Equal(t, len(a.Bids), len(accepted))
	max := decimal.Zero
	for amount := range accepted {
		if amount.GreaterThan(max) {
			max = amount
		}
	}
	assert.True(t, a.HighestBid.Equal(max))
}

func TestClockAdjustmentDuringBidsIsSafe(t *testing.T) {
	e, start := newTestEngine(t, 0, time.Hour)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 50; i++ {
			e.PlaceBid(1, i, money(i), nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			offset := time.Duration(i) * time.Second
			e.SetNow(func() time.Time { return start.Add(offset) })
		}
	}()
	wg.Wait()

	a, err := e.Snapshot(1)
	require.NoError(t, err)
	for i := 1; i < len(a.Bids); i++ {
		assert.True(t, a.Bids[i].Amount.GreaterThan(a.Bids[i-1].Amount))
	}
}

func TestConcurrentCloseFiresOnce(t *testing.T) {
	e, _ := newTestEngine(t, 50, time.Hour)
	_, _, err := e.PlaceBid(1, 100, money(60), nil)
	require.NoError(t, err)

	const closers = 16
	var wg sync.WaitGroup
	eventCounts := make(chan int, closers)

	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, events, err := e.Close(1, []int{7})
			if err == nil {
				eventCounts <- len(events)
			}
		}()
	}
	wg.Wait()
	close(eventCounts)

	withEvents := 0
	for n := range eventCounts {
		if n > 0 {
			withEvents++
		}
	}
	assert.Equal(t, 1, withEvents)
}
