package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"marketplace-service/internal/api"
	"marketplace-service/internal/auction"
	"marketplace-service/internal/config"
	"marketplace-service/internal/consumer"
	"marketplace-service/internal/repository"
	"marketplace-service/internal/service"
	"marketplace-service/migrations"
)

func connectDBEnv(host, port, user, pass, dbname string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Printf("✅ Connected to DB %s", dbname)
				return db, nil
			}
		}
		log.Printf("❌ Retry %d: Failed to connect to DB %s (%s:%s): %v", i+1, dbname, host, port, err)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %v", dbname, host, port, err)
}

func main() {
	db, err := connectDBEnv(os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_USER"), os.Getenv("DB_PASS"), os.Getenv("DB_NAME"))
	if err != nil {
		panic(err)
	}

	if err := migrations.AutoMigrateStores(3, db); err != nil {
		log.Fatalf("Failed to migrate stores table: %v", err)
	}
	if err := migrations.AutoMigrateProducts(3, db); err != nil {
		log.Fatalf("Failed to migrate products table: %v", err)
	}
	if err := migrations.AutoMigrateAuctions(3, db); err != nil {
		log.Fatalf("Failed to migrate auctions tables: %v", err)
	}
	if err := migrations.AutoMigrateDiscountPolicies(3, db); err != nil {
		log.Fatalf("Failed to migrate discount_policies table: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: os.Getenv("REDIS_ADDR"),
	})

	kafkaWriter := config.NewKafkaWriter("auction-events")

	repo := repository.NewRepository(db)
	engine := auction.NewEngine()
	storeService := service.NewStoreService(repo, engine, kafkaWriter, rdb)
	if err := storeService.WarmUp(context.Background()); err != nil {
		log.Fatalf("Failed to load auctions and policies: %v", err)
	}
	marketHandler := api.NewMarketHandler(storeService)

	notificationConsumer := consumer.NewConsumer(rdb)
	go notificationConsumer.StartKafkaConsumer()

	// Deadline sweep: any expired auction closes within a minute even when
	// nobody triggers a close by hand.
	sweeper := cron.New()
	_, err = sweeper.AddFunc("@every 1m", func() {
		storeService.SweepExpiredAuctions(context.Background())
	})
	if err != nil {
		log.Fatalf("Failed to schedule auction sweep: %v", err)
	}
	sweeper.Start()

	e := echo.New()

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(10),
				Burst:     30,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.Request().RemoteAddr, nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "secret"
	}
	jwtConfig := echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(api.JwtCustomClaims)
		},
		SigningKey: []byte(jwtSecret),
	}

	g := e.Group("")
	g.Use(echojwt.WithConfig(jwtConfig))

	g.POST("/stores", marketHandler.CreateStore)
	g.POST("/products", marketHandler.CreateProduct)
	g.GET("/products/:id", marketHandler.GetProduct)
	g.PUT("/products/:id/stock", marketHandler.UpdateStock)
	g.POST("/stores/:storeID/auctions", marketHandler.OpenAuction)
	g.POST("/auctions/:productID/bids", marketHandler.PlaceBid)
	g.POST("/auctions/:productID/close", marketHandler.CloseAuction)
	g.POST("/auctions/:productID/extend", marketHandler.ExtendAuction)
	g.POST("/stores/:storeID/discounts", marketHandler.AddDiscount)
	g.DELETE("/stores/:storeID/discounts/:policyID", marketHandler.RemoveDiscount)
	g.POST("/cart/price", marketHandler.PriceCart)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "marketplace-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}
