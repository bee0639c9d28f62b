package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"marketplace-service/internal/config"
	"marketplace-service/internal/entity"
)

// Consumer turns auction events into per-user notifications. Each recipient
// gets an entry pushed onto their redis notification list; the delivery
// frontend (sockets, mail) drains those lists.
type Consumer struct {
	rdb *redis.Client
}

func NewConsumer(rdb *redis.Client) *Consumer {
	return &Consumer{rdb: rdb}
}

// StartKafkaConsumer starts a Kafka consumer to listen for auction events
func (c *Consumer) StartKafkaConsumer() {
	reader := config.NewKafkaReader("auction-events", "notification-group")
	defer reader.Close()

	ctx := context.Background()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			log.Error().Msgf("Error reading message: %v", err)
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	var event entity.AuctionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().Msgf("Error unmarshalling message: %v", err)
		return
	}

	var text string
	switch event.Type {
	case entity.EventOutbid:
		text = fmt.Sprintf("Your bid on product %d was surpassed by a bid of %s", event.ProductID, event.Amount)
	case entity.EventWon:
		text = fmt.Sprintf("You won the auction for product %d at %s", event.ProductID, event.Amount)
	case entity.EventSold:
		text = fmt.Sprintf("Auction for product %d ended, winner %d at %s", event.ProductID, event.WinnerID, event.Amount)
	case entity.EventNoBids:
		text = fmt.Sprintf("Auction for product %d ended without bids (base price %s)", event.ProductID, event.Amount)
	default:
		log.Error().Msgf("Unknown auction event type: %s", event.Type)
		return
	}

	key := fmt.Sprintf("notifications:%d", event.UserID)
	if err := c.rdb.LPush(ctx, key, text).Err(); err != nil {
		log.Error().Msgf("Error queueing notification for user %d: %v", event.UserID, err)
	}
}
