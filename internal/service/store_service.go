package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"marketplace-service/internal/auction"
	"marketplace-service/internal/discount"
	"marketplace-service/internal/entity"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// StoreService is the façade over the auction, discount and pricing engines.
// It loads and saves state through the repository, caches products in redis
// and publishes the engines' outcome events to kafka.
type StoreService struct {
	repo        *repository.Repository
	auctions    *auction.Engine
	kafkaWriter *kafka.Writer
	rdb         *redis.Client

	mu       sync.Mutex
	policies map[int]*discount.Set // storeID -> active policy trees
}

// NewStoreService creates a new instance of StoreService.
func NewStoreService(repo *repository.Repository, auctions *auction.Engine, kafkaWriter *kafka.Writer, rdb *redis.Client) *StoreService {
	return &StoreService{
		repo:        repo,
		auctions:    auctions,
		kafkaWriter: kafkaWriter,
		rdb:         rdb,
		policies:    make(map[int]*discount.Set),
	}
}

// WarmUp loads auctions and discount policies into memory at startup.
func (s *StoreService) WarmUp(ctx context.Context) error {
	auctions, err := s.repo.GetAuctions(ctx)
	if err != nil {
		return err
	}
	for _, a := range auctions {
		if err := s.auctions.Open(a); err != nil {
			return err
		}
	}

	storeIDs, err := s.repo.GetStoreIDs(ctx)
	if err != nil {
		return err
	}
	for _, storeID := range storeIDs {
		docs, err := s.repo.GetPoliciesByStore(ctx, storeID)
		if err != nil {
			return err
		}
		set := s.policySet(storeID)
		for _, doc := range docs {
			p, err := discount.Decode(doc)
			if err != nil {
				logger.Error().Err(err).Msgf("Error decoding discount policy for store %d", storeID)
				continue
			}
			set.Add(p)
		}
	}
	return nil
}

func (s *StoreService) policySet(storeID int) *discount.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.policies[storeID]
	if !ok {
		set = discount.NewSet()
		s.policies[storeID] = set
	}
	return set
}

// CreateStore creates a new store.
func (s *StoreService) CreateStore(ctx context.Context, store *entity.Store) (*entity.Store, error) {
	created, err := s.repo.CreateStore(ctx, store)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating store")
		return nil, err
	}
	return created, nil
}

// CreateProduct creates a new product in a store.
func (s *StoreService) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if product.Price.IsNegative() {
		return nil, fmt.Errorf("product price must not be negative")
	}
	if product.Stock < 0 {
		return nil, fmt.Errorf("product stock must not be negative")
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating product")
		return nil, err
	}
	return created, nil
}

// GetProduct retrieves a product, reading through the redis cache.
func (s *StoreService) GetProduct(ctx context.Context, productID int) (*entity.Product, error) {
	key := fmt.Sprintf("product:%d", productID)
	cached, err := s.rdb.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error().Err(err).Msgf("Error getting product %d from cache", productID)
	}
	if cached != "" {
		var product entity.Product
		if err := json.Unmarshal([]byte(cached), &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting product by ID %d", productID)
		return nil, err
	}

	data, err := json.Marshal(product)
	if err == nil {
		if err := s.rdb.Set(ctx, key, data, time.Minute).Err(); err != nil {
			logger.Error().Err(err).Msgf("Error setting product %d in cache", productID)
		}
	}
	return product, nil
}

// UpdateStock sets the available quantity for a product and drops its cache
// entry.
func (s *StoreService) UpdateStock(ctx context.Context, productID, stock int) error {
	if stock < 0 {
		return fmt.Errorf("product stock must not be negative")
	}
	if err := s.repo.UpdateProductStock(ctx, productID, stock); err != nil {
		logger.Error().Err(err).Msgf("Error updating stock for product %d", productID)
		return err
	}
	if err := s.rdb.Del(ctx, fmt.Sprintf("product:%d", productID)).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error deleting product %d from cache", productID)
	}
	return nil
}

// OpenAuction lists a product for auction. The auction starts at the
// product's price and runs for the given number of days. Only store staff
// may open an auction.
func (s *StoreService) OpenAuction(ctx context.Context, userID, storeID, productID, days int) (*entity.Auction, error) {
	store, err := s.repo.GetStoreByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !store.IsStaff(userID) {
		return nil, fmt.Errorf("user %d does not run store %d", userID, storeID)
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.StoreID != storeID {
		return nil, fmt.Errorf("product %d does not belong to store %d", productID, storeID)
	}
	if days <= 0 {
		return nil, fmt.Errorf("auction duration must be at least one day")
	}

	a := &entity.Auction{
		ProductID:  productID,
		StoreID:    storeID,
		BasePrice:  product.Price,
		HighestBid: product.Price,
		EndTime:    time.Now().Add(time.Duration(days) * 24 * time.Hour),
		Status:     entity.AuctionOpen,
	}
	// Persist before registering with the engine: a failed insert must not
	// leave a live auction, and a retry must not hit ErrAuctionExists. The
	// product_id primary key rejects a double listing at the database.
	if err := s.repo.CreateAuction(ctx, a); err != nil {
		logger.Error().Err(err).Msgf("Error persisting auction for product %d", productID)
		return nil, err
	}
	if err := s.auctions.Open(a); err != nil {
		return nil, err
	}
	return a, nil
}

// PlaceBid submits a bid on an open auction. The idempotent key, when set,
// guards against a client resubmitting the same bid.
func (s *StoreService) PlaceBid(ctx context.Context, productID, bidderID int, amount decimal.Decimal, idempotentKey string) error {
	if idempotentKey != "" {
		fresh, err := s.validateIdempotentKey(ctx, idempotentKey)
		if err != nil {
			return err
		}
		if !fresh {
			return errors.New("idempotent key already exists")
		}
	}

	snapshot, err := s.auctions.Snapshot(productID)
	if err != nil {
		return err
	}
	store, err := s.repo.GetStoreByID(ctx, snapshot.StoreID)
	if err != nil {
		return err
	}

	bid, events, err := s.auctions.PlaceBid(productID, bidderID, amount, store.Staff())
	if err != nil {
		return err
	}

	updated, err := s.auctions.Snapshot(productID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateAuction(ctx, &updated); err != nil {
		logger.Error().Err(err).Msgf("Error persisting auction for product %d", productID)
		return err
	}
	// Persist the bid the engine accepted for this caller, not the last log
	// entry of a fresh snapshot: a racing bid may land in between, and its
	// row must not replace this one.
	if err := s.repo.InsertBid(ctx, productID, bid); err != nil {
		logger.Error().Err(err).Msgf("Error persisting bid for product %d", productID)
		return err
	}

	return s.publishAuctionEvents(ctx, events)
}

// CloseAuction ends an auction. Safe to call more than once; only the first
// close produces events.
func (s *StoreService) CloseAuction(ctx context.Context, productID int) (auction.Outcome, error) {
	snapshot, err := s.auctions.Snapshot(productID)
	if err != nil {
		return auction.Outcome{}, err
	}
	store, err := s.repo.GetStoreByID(ctx, snapshot.StoreID)
	if err != nil {
		return auction.Outcome{}, err
	}

	outcome, events, err := s.auctions.Close(productID, store.Staff())
	if err != nil {
		return auction.Outcome{}, err
	}

	// Durability of the state transition depends on the status change, not
	// on whether anyone is around to be notified.
	if outcome.Status != snapshot.Status {
		updated, err := s.auctions.Snapshot(productID)
		if err != nil {
			return auction.Outcome{}, err
		}
		if err := s.repo.UpdateAuction(ctx, &updated); err != nil {
			logger.Error().Err(err).Msgf("Error persisting auction for product %d", productID)
			return auction.Outcome{}, err
		}
	}
	if len(events) > 0 {
		if err := s.publishAuctionEvents(ctx, events); err != nil {
			return auction.Outcome{}, err
		}
	}
	return outcome, nil
}

// ExtendAuction pushes an open auction's deadline out by extraDays.
func (s *StoreService) ExtendAuction(ctx context.Context, productID, extraDays int) (time.Time, error) {
	if extraDays <= 0 {
		return time.Time{}, fmt.Errorf("extension must be at least one day")
	}
	endTime, err := s.auctions.Extend(productID, extraDays)
	if err != nil {
		return time.Time{}, err
	}

	updated, err := s.auctions.Snapshot(productID)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.repo.UpdateAuction(ctx, &updated); err != nil {
		logger.Error().Err(err).Msgf("Error persisting auction for product %d", productID)
		return time.Time{}, err
	}
	return endTime, nil
}

// SweepExpiredAuctions closes every open auction whose deadline has passed.
// Runs on a schedule; racing a manual close is safe because Close is
// idempotent.
func (s *StoreService) SweepExpiredAuctions(ctx context.Context) {
	for _, productID := range s.auctions.Expired() {
		if _, err := s.CloseAuction(ctx, productID); err != nil {
			logger.Error().Err(err).Msgf("Error closing expired auction for product %d", productID)
		}
	}
}

// AddDiscount activates a policy tree for a store and persists it.
func (s *StoreService) AddDiscount(ctx context.Context, userID, storeID int, req *PolicyRequest) (*discount.Policy, error) {
	store, err := s.repo.GetStoreByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !store.IsStaff(userID) {
		return nil, fmt.Errorf("user %d does not run store %d", userID, storeID)
	}

	policy, err := BuildPolicy(req)
	if err != nil {
		return nil, err
	}

	doc, err := discount.Encode(policy)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SavePolicy(ctx, storeID, policy.ID, doc); err != nil {
		logger.Error().Err(err).Msgf("Error persisting discount policy for store %d", storeID)
		return nil, err
	}

	s.policySet(storeID).Add(policy)
	return policy, nil
}

// RemoveDiscount removes a policy node (and its subtree) by id.
func (s *StoreService) RemoveDiscount(ctx context.Context, userID, storeID int, policyID string) error {
	store, err := s.repo.GetStoreByID(ctx, storeID)
	if err != nil {
		return err
	}
	if !store.IsStaff(userID) {
		return fmt.Errorf("user %d does not run store %d", userID, storeID)
	}

	rootID, replacement, err := s.policySet(storeID).Remove(policyID)
	if err != nil {
		return err
	}

	if replacement == nil {
		if err := s.repo.DeletePolicy(ctx, rootID); err != nil {
			logger.Error().Err(err).Msgf("Error deleting discount policy %s", rootID)
			return err
		}
		return nil
	}

	doc, err := discount.Encode(replacement)
	if err != nil {
		return err
	}
	if err := s.repo.ReplacePolicy(ctx, rootID, replacement.ID, doc); err != nil {
		logger.Error().Err(err).Msgf("Error rewriting discount policy %s", rootID)
		return err
	}
	return nil
}

// PriceCart computes the charge for every store in the cart. Auction wins of
// the requesting user price at the winning bid; each store's active policies
// are applied against the original prices and the result clamped at zero.
func (s *StoreService) PriceCart(ctx context.Context, userID int, cart entity.Cart) (map[int]decimal.Decimal, error) {
	amounts := make(map[int]decimal.Decimal, len(cart))
	for storeID, lines := range cart {
		products, err := s.repo.GetProductsByStore(ctx, storeID)
		if err != nil {
			logger.Error().Err(err).Msgf("Error loading products for store %d", storeID)
			return nil, err
		}

		wonPrice := func(productID int) (decimal.Decimal, bool) {
			return s.auctions.WonPrice(productID, userID)
		}

		amount, err := pricing.CalcAmount(products, lines, wonPrice, s.policySet(storeID))
		if err != nil {
			return nil, err
		}
		amounts[storeID] = amount
	}
	return amounts, nil
}

func (s *StoreService) publishAuctionEvents(ctx context.Context, events []entity.AuctionEvent) error {
	if len(events) == 0 || s.kafkaWriter == nil {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		// auction.outbid.42 or auction.sold.42
		messages = append(messages, kafka.Message{
			Key:   []byte(fmt.Sprintf("auction.%s.%d", event.Type, event.ProductID)),
			Value: data,
		})
	}

	if err := s.kafkaWriter.WriteMessages(ctx, messages...); err != nil {
		logger.Error().Err(err).Msg("Error publishing auction events")
		return err
	}
	return nil
}

func (s *StoreService) validateIdempotentKey(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("bid-key:%s", key)
	val, err := s.rdb.Get(ctx, redisKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	if val != "" {
		return false, nil
	}

	if err := s.rdb.Set(ctx, redisKey, "exists", 24*time.Hour).Err(); err != nil {
		return false, err
	}
	return true, nil
}
