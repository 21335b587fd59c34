package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresSource reads active, non-deleted services and their features
// straight from the backend's database.
type PostgresSource struct {
	DB *sqlx.DB
}

func OpenPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return db, nil
}

type serviceRow struct {
	ID                   int64           `db:"id"`
	Name                 string          `db:"name"`
	ShortDescription     string          `db:"short_description"`
	Description          string          `db:"description"`
	Price                float64         `db:"price"`
	DiscountedPrice      sql.NullFloat64 `db:"discounted_price"`
	IsSubscription       bool            `db:"is_subscription"`
	SubscriptionInterval sql.NullString  `db:"subscription_interval"`
	Image                string          `db:"image"`
}

type featureRow struct {
	ServiceID int64  `db:"service_id"`
	Feature   string `db:"feature"`
}

const qServices = `
	SELECT id, name, short_description, description, price, discounted_price,
	       is_subscription, subscription_interval, image
	FROM services
	WHERE deleted_at IS NULL AND is_active = true
	ORDER BY id`

const qFeatures = `
	SELECT service_id, feature
	FROM service_features
	WHERE deleted_at IS NULL
	ORDER BY service_id, id`

func (s PostgresSource) Load(ctx context.Context) ([]Service, error) {
	var rows []serviceRow
	if err := s.DB.SelectContext(ctx, &rows, qServices); err != nil {
		return nil, fmt.Errorf("selecting services: %w", err)
	}

	var features []featureRow
	if err := s.DB.SelectContext(ctx, &features, qFeatures); err != nil {
		return nil, fmt.Errorf("selecting service features: %w", err)
	}

	return assemble(rows, features), nil
}

func assemble(rows []serviceRow, features []featureRow) []Service {
	byService := make(map[int64][]string)
	for _, f := range features {
		byService[f.ServiceID] = append(byService[f.ServiceID], f.Feature)
	}

	services := make([]Service, 0, len(rows))
	for _, r := range rows {
		svc := Service{
			ID:                   r.ID,
			Name:                 r.Name,
			ShortDescription:     r.ShortDescription,
			Description:          r.Description,
			Price:                int(math.Round(r.Price)),
			IsSubscription:       r.IsSubscription,
			SubscriptionInterval: r.SubscriptionInterval.String,
			Image:                r.Image,
			Features:             byService[r.ID],
		}
		if r.DiscountedPrice.Valid {
			d := int(math.Round(r.DiscountedPrice.Float64))
			svc.DiscountedPrice = &d
		}
		services = append(services, svc)
	}
	return services
}
