package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"ordercore/internal/model"
	"ordercore/internal/ops"
	"ordercore/pkg/conn"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// seed plays the upstream component: it inserts orders in the created state
// for workers to pick up.
func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with ORDERCORE_* overrides")
	count := flag.Int("count", 10, "Number of orders to insert")
	symbol := flag.String("symbol", "BTCUSD", "Order symbol")
	side := flag.String("side", "BUY", "Order side (BUY|SELL)")
	volume := flag.String("volume", "0.01", "Order volume")
	migrate := flag.Bool("migrate", false, "Create the orders table when missing")
	flag.Parse()

	if *count <= 0 {
		log.Fatalf("count must be > 0")
	}
	orderSide := model.OrderSide(*side).Normalize()
	if !orderSide.IsAvailable() {
		log.Fatalf("invalid side: %s", *side)
	}
	vol, err := decimal.NewFromString(*volume)
	if err != nil || !vol.IsPositive() {
		log.Fatalf("invalid volume: %s", *volume)
	}

	loaded, err := ops.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := conn.New(ctx, loaded.Store)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	db := client.DB().WithContext(ctx)
	if *migrate {
		if err := db.AutoMigrate(&model.Order{}); err != nil {
			log.Fatalf("migrate orders failed: %v", err)
		}
	}

	orders := buildOrders(*count, strings.ToUpper(*symbol), orderSide, vol)
	if err := insertOrders(db, orders); err != nil {
		log.Fatalf("insert failed: %v", err)
	}

	for _, o := range orders {
		fmt.Println(o.ID)
	}
	log.Printf("seeded %d orders, symbol: %s, side: %s, volume: %s", len(orders), *symbol, orderSide, vol)
}

func buildOrders(n int, symbol string, side model.OrderSide, volume decimal.Decimal) []model.Order {
	orders := make([]model.Order, 0, n)
	for range n {
		orders = append(orders, model.Order{
			ID:     uuid.NewString(),
			Status: model.OrderStatusCreated,
			Symbol: symbol,
			Side:   side,
			Volume: decimal.NewNullDecimal(volume),
		})
	}
	return orders
}

func insertOrders(db *gorm.DB, orders []model.Order) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(orders, 100).Error
	})
}
