package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionOpen   AuctionStatus = "open"
	AuctionSold   AuctionStatus = "sold"
	AuctionNoBids AuctionStatus = "no_bids"
)

type Bid struct {
	BidderID int             `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Auction is the live bidding record for a single product.
// HighestBid starts at the base price with no bidder, so the first
// accepted bid always strictly exceeds the base price.
type Auction struct {
	ProductID       int             `json:"product_id"`
	StoreID         int             `json:"store_id"`
	BasePrice       decimal.Decimal `json:"base_price"`
	HighestBid      decimal.Decimal `json:"highest_bid"`
	HighestBidderID int             `json:"highest_bidder_id"` // 0 = no bids yet
	EndTime         time.Time       `json:"end_time"`
	Status          AuctionStatus   `json:"status"`
	Bids            []Bid           `json:"bids"`
}

/*
Schema MySQL for auctions / auction_bids tables:
CREATE TABLE `auctions` (
  `product_id` int(11) NOT NULL,
  `store_id` int(11) NOT NULL,
  `base_price` decimal(12,2) NOT NULL,
  `highest_bid` decimal(12,2) NOT NULL,
  `highest_bidder_id` int(11) NOT NULL DEFAULT 0,
  `end_time` datetime NOT NULL,
  `status` varchar(20) NOT NULL,
  PRIMARY KEY (`product_id`)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE `auction_bids` (
  `id` int(11) NOT NULL AUTO_INCREMENT,
  `product_id` int(11) NOT NULL,
  `bidder_id` int(11) NOT NULL,
  `amount` decimal(12,2) NOT NULL,
  `placed_at` datetime NOT NULL,
  PRIMARY KEY (`id`)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
*/

type AuctionEventType string

const (
	// EventOutbid goes to the previous highest bidder when a higher bid lands.
	EventOutbid AuctionEventType = "outbid"
	// EventWon goes to the winning bidder when the auction closes sold.
	EventWon AuctionEventType = "won"
	// EventSold goes to each member of the store staff when the auction sells.
	EventSold AuctionEventType = "sold"
	// EventNoBids goes to each member of the store staff when the auction
	// closes without a single bid.
	EventNoBids AuctionEventType = "no_bids"
)

// AuctionEvent is an outcome produced by the auction engine. The engine only
// returns these as values; delivery (kafka, sockets) happens elsewhere.
type AuctionEvent struct {
	Type      AuctionEventType `json:"type"`
	UserID    int              `json:"user_id"` // recipient
	ProductID int              `json:"product_id"`
	StoreID   int              `json:"store_id"`
	Amount    decimal.Decimal  `json:"amount"`
	WinnerID  int              `json:"winner_id,omitempty"`
}
