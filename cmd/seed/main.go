// Command seed loads a YAML catalog file into the product and stock stores.
// Intended for dev and demo environments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
	"github.com/fairyhunter13/orderflow/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/orderflow/internal/config"
	"github.com/fairyhunter13/orderflow/internal/domain"
	"github.com/fairyhunter13/orderflow/internal/usecase"
)

type catalogYAML struct {
	Products []struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Price       float64  `yaml:"price"`
		Images      []string `yaml:"images"`
		Quantity    int64    `yaml:"quantity"`
	} `yaml:"products"`
}

func main() {
	path := flag.String("file", "seed/catalog.yaml", "path to the catalog YAML file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	if cfg.DBURL == "" {
		slog.Error("DB_URL is required for seeding")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	catalog := usecase.NewCatalogService(postgres.NewProductRepo(pool), postgres.NewStockRepo(pool))
	n, err := seedFromYAML(ctx, catalog, *path)
	if err != nil {
		slog.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("catalog seeded", slog.Int("products", n), slog.String("file", *path))
}

func seedFromYAML(ctx context.Context, catalog usecase.CatalogService, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var doc catalogYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return 0, fmt.Errorf("yaml parse: %w", err)
	}
	if len(doc.Products) == 0 {
		return 0, fmt.Errorf("no products to seed in %s", path)
	}
	for _, p := range doc.Products {
		productID, err := catalog.CreateProduct(ctx, domain.Product{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Images:      p.Images,
		})
		if err != nil {
			return 0, fmt.Errorf("create product %q: %w", p.Name, err)
		}
		if _, err := catalog.CreateStock(ctx, domain.Stock{ProductID: productID, Quantity: p.Quantity}); err != nil {
			return 0, fmt.Errorf("create stock for %q: %w", p.Name, err)
		}
	}
	return len(doc.Products), nil
}
