// Command seed-db loads demo products, discount codes, and API keys into the
// database. It is meant for local development and the integration test stack.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/evermart/checkout/internal/repository"
)

type productJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Image   string          `json:"image"`
	InStock bool            `json:"inStock"`
}

type seedKey struct {
	id     string
	key    string
	userID string
	name   string
	scopes []string
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, image, in_stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			image = EXCLUDED.image, in_stock = EXCLUDED.in_stock`

	upsertDiscountSQL = `INSERT INTO discount_codes
		(id, code, kind, value, min_order_amount, expires_at, active, usage_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, value = EXCLUDED.value,
			min_order_amount = EXCLUDED.min_order_amount,
			expires_at = EXCLUDED.expires_at, active = EXCLUDED.active,
			usage_limit = EXCLUDED.usage_limit`

	upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash, user_id = EXCLUDED.user_id,
			name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "customer API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, adminKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, adminKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDiscountCodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}

	if err := seedCart(ctx, pool, "user-1"); err != nil {
		return errors.Wrap(err, "seed cart")
	}

	keys := []seedKey{
		{id: "default", key: apiKey, userID: "user-1", name: "Default test key", scopes: []string{"checkout"}},
	}
	if adminKey != "" {
		keys = append(keys, seedKey{
			id: "admin", key: adminKey, userID: "admin-1", name: "Admin key", scopes: []string{"checkout", "admin"},
		})
	}
	for _, k := range keys {
		if err := seedAPIKey(ctx, pool, k, pepper); err != nil {
			return errors.Wrapf(err, "seed api key %s", k.id)
		}
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Image, p.InStock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}

	return nil
}

func seedDiscountCodes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo discount codes")

	nextYear := time.Now().AddDate(1, 0, 0)

	codes := []struct {
		id, code, kind string
		value          decimal.Decimal
		minOrder       decimal.Decimal
		expiresAt      *time.Time
		usageLimit     int
	}{
		{id: "dc-welcome10", code: "WELCOME10", kind: "percentage", value: decimal.NewFromInt(10)},
		{id: "dc-flat500", code: "FLAT500", kind: "fixed", value: decimal.NewFromInt(500), minOrder: decimal.NewFromInt(3000)},
		{id: "dc-festive", code: "FESTIVE25", kind: "percentage", value: decimal.NewFromInt(25), expiresAt: &nextYear, usageLimit: 1000},
	}

	for _, c := range codes {
		_, err := pool.Exec(ctx, upsertDiscountSQL,
			c.id, c.code, c.kind, c.value, c.minOrder, c.expiresAt, true, c.usageLimit,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert discount code %s", c.code)
		}

		slog.Info("upserted discount code", slog.String("code", c.code))
	}

	return nil
}

// seedCart fills the demo user's cart so a checkout works immediately after
// seeding.
func seedCart(ctx context.Context, pool *pgxpool.Pool, userID string) error {
	items := []struct {
		productID string
		quantity  int
	}{
		{productID: "prod-espresso-kit", quantity: 1},
		{productID: "prod-beans-1kg", quantity: 2},
	}

	for _, it := range items {
		if _, err := pool.Exec(ctx, upsertCartItemSQL, userID, it.productID, it.quantity); err != nil {
			return errors.Wrapf(err, "upsert cart item %s", it.productID)
		}
	}

	slog.Info("seeded cart", slog.String("user", userID), slog.Int("items", len(items)))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, k seedKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(k.key))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, k.id, keyHash, k.userID, k.name, k.scopes); err != nil {
		return err
	}

	slog.Info("upserted API key", slog.String("id", k.id), slog.String("user", k.userID))
	return nil
}
