package migrations

import (
	"database/sql"
	"time"
)

func execWithRetry(db *sql.DB, query string, retries int) error {
	_, err := db.Exec(query)
	if err != nil {
		// Retry creating the table
		for i := 0; i < retries; i++ {
			time.Sleep(1 * time.Second)
			_, err = db.Exec(query)
			if err == nil {
				break
			}
		}
	}
	return err
}

// AutoMigrateStores creates the stores table if it does not exist.
func AutoMigrateStores(retries int, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS stores (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			founder_id INT NOT NULL,
			owner_ids JSON NOT NULL,
			manager_ids JSON NOT NULL
		);
	`
	return execWithRetry(db, query, retries)
}

// AutoMigrateProducts creates the products table if it does not exist.
func AutoMigrateProducts(retries int, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS products (
			id INT AUTO_INCREMENT PRIMARY KEY,
			store_id INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			stock INT NOT NULL
		);
	`
	return execWithRetry(db, query, retries)
}

// AutoMigrateAuctions creates the auctions and auction_bids tables if they
// do not exist.
func AutoMigrateAuctions(retries int, db *sql.DB) error {
	auctions := `
		CREATE TABLE IF NOT EXISTS auctions (
			product_id INT PRIMARY KEY,
			store_id INT NOT NULL,
			base_price DECIMAL(12,2) NOT NULL,
			highest_bid DECIMAL(12,2) NOT NULL,
			highest_bidder_id INT NOT NULL DEFAULT 0,
			end_time DATETIME NOT NULL,
			status VARCHAR(20) NOT NULL
		);
	`
	if err := execWithRetry(db, auctions, retries); err != nil {
		return err
	}

	bids := `
		CREATE TABLE IF NOT EXISTS auction_bids (
			id INT AUTO_INCREMENT PRIMARY KEY,
			product_id INT NOT NULL,
			bidder_id INT NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			placed_at DATETIME NOT NULL
		);
	`
	return execWithRetry(db, bids, retries)
}

// AutoMigrateDiscountPolicies creates the discount_policies table if it does
// not exist.
func AutoMigrateDiscountPolicies(retries int, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS discount_policies (
			id VARCHAR(36) PRIMARY KEY,
			store_id INT NOT NULL,
			doc JSON NOT NULL
		);
	`
	return execWithRetry(db, query, retries)
}
