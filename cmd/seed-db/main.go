// Command seed-db loads demo stores, menus, happy hour events, and offers
// into the database from a JSON fixtures file (optionally gzip-compressed).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/happyhour-app/happyhour/internal/repository"
)

type fixtures struct {
	Stores []struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Lat      float64 `json:"lat"`
		Lng      float64 `json:"lng"`
		Category string  `json:"category"`
	} `json:"stores"`
	Menus []struct {
		ID      string          `json:"id"`
		StoreID string          `json:"store_id"`
		Name    string          `json:"name"`
		Price   decimal.Decimal `json:"price"`
	} `json:"menus"`
	Events []struct {
		ID             string `json:"id"`
		StoreID        string `json:"store_id"`
		Title          string `json:"title"`
		StartDate      string `json:"start_date"`
		EndDate        string `json:"end_date"`
		HappyHourStart string `json:"happy_hour_start"`
		HappyHourEnd   string `json:"happy_hour_end"`
		Weekdays       []int  `json:"weekdays"`
	} `json:"events"`
	Discounts []struct {
		ID           string          `json:"id"`
		EventID      string          `json:"event_id"`
		MenuID       string          `json:"menu_id"`
		DiscountRate int             `json:"discount_rate"`
		FinalPrice   decimal.Decimal `json:"final_price"`
		Remaining    *int            `json:"remaining"`
	} `json:"discounts"`
	GiftOptions []struct {
		ID        string `json:"id"`
		EventID   string `json:"event_id"`
		MenuID    string `json:"menu_id"`
		GroupID   string `json:"group_id"`
		Remaining *int   `json:"remaining"`
	} `json:"gift_options"`
}

func main() {
	var (
		databaseURL  string
		fixturesFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixturesFile, "fixtures-file", "db/seed/fixtures.json", "path to fixtures JSON file (.gz supported)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixturesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixturesFile string) error {
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

	fx, err := loadFixtures(fixturesFile)
	if err != nil {
		return errors.Wrap(err, "load fixtures")
	}

	return seed(ctx, pool, fx)
}

func loadFixtures(path string) (*fixtures, error) {
	slog.Info("reading fixtures file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var fx fixtures
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, errors.Wrap(err, "parse fixtures JSON")
	}
	return &fx, nil
}

func seed(ctx context.Context, pool *pgxpool.Pool, fx *fixtures) error {
	slog.Info("upserting stores", slog.Int("count", len(fx.Stores)))
	for _, s := range fx.Stores {
		_, err := pool.Exec(ctx, `INSERT INTO stores (id, name, lat, lng, category)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
				category = EXCLUDED.category`,
			s.ID, s.Name, s.Lat, s.Lng, s.Category)
		if err != nil {
			return errors.Wrapf(err, "upsert store %s", s.ID)
		}
	}

	slog.Info("upserting menus", slog.Int("count", len(fx.Menus)))
	for _, m := range fx.Menus {
		_, err := pool.Exec(ctx, `INSERT INTO menus (id, store_id, name, price)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				store_id = EXCLUDED.store_id, name = EXCLUDED.name, price = EXCLUDED.price`,
			m.ID, m.StoreID, m.Name, m.Price)
		if err != nil {
			return errors.Wrapf(err, "upsert menu %s", m.ID)
		}
	}

	slog.Info("upserting events", slog.Int("count", len(fx.Events)))
	for _, e := range fx.Events {
		_, err := pool.Exec(ctx, `INSERT INTO events
				(id, store_id, title, start_date, end_date,
				 happy_hour_start, happy_hour_end, weekdays)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				store_id = EXCLUDED.store_id, title = EXCLUDED.title,
				start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
				happy_hour_start = EXCLUDED.happy_hour_start,
				happy_hour_end = EXCLUDED.happy_hour_end,
				weekdays = EXCLUDED.weekdays`,
			e.ID, e.StoreID, e.Title, e.StartDate, e.EndDate,
			e.HappyHourStart, e.HappyHourEnd, e.Weekdays)
		if err != nil {
			return errors.Wrapf(err, "upsert event %s", e.ID)
		}
	}

	slog.Info("upserting discounts", slog.Int("count", len(fx.Discounts)))
	for _, d := range fx.Discounts {
		_, err := pool.Exec(ctx, `INSERT INTO discounts
				(id, event_id, menu_id, discount_rate, final_price, remaining)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				event_id = EXCLUDED.event_id, menu_id = EXCLUDED.menu_id,
				discount_rate = EXCLUDED.discount_rate,
				final_price = EXCLUDED.final_price,
				remaining = EXCLUDED.remaining,
				is_active = TRUE`,
			d.ID, d.EventID, d.MenuID, d.DiscountRate, d.FinalPrice, d.Remaining)
		if err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.ID)
		}
	}

	slog.Info("upserting gift options", slog.Int("count", len(fx.GiftOptions)))
	for _, g := range fx.GiftOptions {
		_, err := pool.Exec(ctx, `INSERT INTO gift_options
				(id, event_id, menu_id, group_id, remaining)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				event_id = EXCLUDED.event_id, menu_id = EXCLUDED.menu_id,
				group_id = EXCLUDED.group_id, remaining = EXCLUDED.remaining,
				is_active = TRUE`,
			g.ID, g.EventID, g.MenuID, g.GroupID, g.Remaining)
		if err != nil {
			return errors.Wrapf(err, "upsert gift option %s", g.ID)
		}
	}

	return nil
}
