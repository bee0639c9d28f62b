package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace-service/internal/entity"
)

// Repository handles the interactions with the marketplace database.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new instance of Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db}
}

// CreateStore inserts a store and returns it with its assigned ID.
func (r *Repository) CreateStore(ctx context.Context, store *entity.Store) (*entity.Store, error) {
	owners, err := json.Marshal(store.OwnerIDs)
	if err != nil {
		return nil, err
	}
	managers, err := json.Marshal(store.ManagerIDs)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO stores (name, founder_id, owner_ids, manager_ids) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, store.Name, store.FounderID, owners, managers)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	store.ID = int(id)
	return store, nil
}

// GetStoreByID fetches a store with its staff lists.
func (r *Repository) GetStoreByID(ctx context.Context, id int) (*entity.Store, error) {
	query := `SELECT id, name, founder_id, owner_ids, manager_ids FROM stores WHERE id = ?`
	store := &entity.Store{}
	var owners, managers []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&store.ID, &store.Name, &store.FounderID, &owners, &managers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store %d not found", id)
		}
		return nil, err
	}
	if err := json.Unmarshal(owners, &store.OwnerIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(managers, &store.ManagerIDs); err != nil {
		return nil, err
	}
	return store, nil
}

// CreateProduct inserts a product and returns it with its assigned ID.
func (r *Repository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `INSERT INTO products (store_id, name, description, price, stock) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, product.StoreID, product.Name, product.Description, product.Price, product.Stock)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	product.ID = int(id)
	return product, nil
}

// GetProductByID fetches a single product.
func (r *Repository) GetProductByID(ctx context.Context, id int) (*entity.Product, error) {
	query := `SELECT id, store_id, name, description, price, stock FROM products WHERE id = ?`
	product := &entity.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&product.ID, &product.StoreID, &product.Name, &product.Description, &product.Price, &product.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d not found", id)
		}
		return nil, err
	}
	return product, nil
}

// GetProductsByStore fetches every product of a store keyed by product ID.
func (r *Repository) GetProductsByStore(ctx context.Context, storeID int) (map[int]entity.Product, error) {
	query := `SELECT id, store_id, name, description, price, stock FROM products WHERE store_id = ?`
	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[int]entity.Product)
	for rows.Next() {
		var product entity.Product
		err := rows.Scan(&product.ID, &product.StoreID, &product.Name, &product.Description, &product.Price, &product.Stock)
		if err != nil {
			return nil, err
		}
		products[product.ID] = product
	}
	return products, rows.Err()
}

// UpdateProductStock sets the available quantity for a product.
func (r *Repository) UpdateProductStock(ctx context.Context, productID, stock int) error {
	query := `UPDATE products SET stock = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, stock, productID)
	return err
}

// CreateAuction inserts a new auction record.
func (r *Repository) CreateAuction(ctx context.Context, a *entity.Auction) error {
	query := `INSERT INTO auctions (product_id, store_id, base_price, highest_bid, highest_bidder_id, end_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, a.ProductID, a.StoreID, a.BasePrice, a.HighestBid, a.HighestBidderID, a.EndTime, a.Status)
	return err
}

// UpdateAuction persists the auction's mutable state after a bid, an
// extension or a close.
func (r *Repository) UpdateAuction(ctx context.Context, a *entity.Auction) error {
	query := `UPDATE auctions SET highest_bid = ?, highest_bidder_id = ?, end_time = ?, status = ? WHERE product_id = ?`
	_, err := r.db.ExecContext(ctx, query, a.HighestBid, a.HighestBidderID, a.EndTime, a.Status, a.ProductID)
	return err
}

// InsertBid appends an accepted bid to the bid log.
func (r *Repository) InsertBid(ctx context.Context, productID int, bid entity.Bid) error {
	query := `INSERT INTO auction_bids (product_id, bidder_id, amount, placed_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, productID, bid.BidderID, bid.Amount, bid.PlacedAt)
	return err
}

// GetAuctions loads every auction with its bid log, for engine warm-up at
// startup.
func (r *Repository) GetAuctions(ctx context.Context) ([]*entity.Auction, error) {
	query := `SELECT product_id, store_id, base_price, highest_bid, highest_bidder_id, end_time, status FROM auctions`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*entity.Auction
	for rows.Next() {
		a := &entity.Auction{}
		err := rows.Scan(&a.ProductID, &a.StoreID, &a.BasePrice, &a.HighestBid, &a.HighestBidderID, &a.EndTime, &a.Status)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bidQuery := `SELECT bidder_id, amount, placed_at FROM auction_bids WHERE product_id = ? ORDER BY id`
	for _, a := range auctions {
		bidRows, err := r.db.QueryContext(ctx, bidQuery, a.ProductID)
		if err != nil {
			return nil, err
		}
		for bidRows.Next() {
			var bid entity.Bid
			if err := bidRows.Scan(&bid.BidderID, &bid.Amount, &bid.PlacedAt); err != nil {
				bidRows.Close()
				return nil, err
			}
			a.Bids = append(a.Bids, bid)
		}
		if err := bidRows.Err(); err != nil {
			bidRows.Close()
			return nil, err
		}
		bidRows.Close()
	}
	return auctions, nil
}

// SavePolicy stores a discount policy tree as its serialized form.
func (r *Repository) SavePolicy(ctx context.Context, storeID int, policyID string, doc []byte) error {
	query := `INSERT INTO discount_policies (id, store_id, doc) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, policyID, storeID, doc)
	return err
}

// ReplacePolicy rewrites the serialized form of a policy tree after a nested
// node was pruned out of it.
func (r *Repository) ReplacePolicy(ctx context.Context, oldID, newID string, doc []byte) error {
	query := `UPDATE discount_policies SET id = ?, doc = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, newID, doc, oldID)
	return err
}

// DeletePolicy removes a stored policy tree by its root id.
func (r *Repository) DeletePolicy(ctx context.Context, policyID string) error {
	query := `DELETE FROM discount_policies WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, policyID)
	return err
}

// GetPoliciesByStore loads the serialized policy trees of a store.
func (r *Repository) GetPoliciesByStore(ctx context.Context, storeID int) ([][]byte, error) {
	query := `SELECT doc FROM discount_policies WHERE store_id = ?`
	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetStoreIDs lists every store id, for policy warm-up at startup.
func (r *Repository) GetStoreIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM stores`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
