package jurisdiction

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tax/internal/tax"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewMigrator returns a golang-migrate instance over the embedded migrations.
// databaseURL is a regular postgres:// URL.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func pgx5URL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

// Querier is the subset of pgxpool.Pool used for lookups.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres resolves jurisdictions from the tax_* tables.
type Postgres struct {
	Q Querier
}

const resolveSQL = `
SELECT j.mode, c.name, c.field_match_type, r.region_name, r.tax_code, r.rate::text
FROM tax_jurisdictions j
LEFT JOIN tax_categories c ON c.jurisdiction_id = j.id
LEFT JOIN tax_region_rates r ON r.category_id = c.id
WHERE j.store_code = $1 AND upper(j.region_code) = upper($2)
ORDER BY c.position, c.name, r.region_name, r.tax_code`

// Resolve loads the jurisdiction for the store and address country.
func (p Postgres) Resolve(ctx context.Context, storeCode string, addr *tax.Address) (*tax.Jurisdiction, error) {
	if addr == nil {
		return nil, nil
	}
	region := strings.TrimSpace(addr.Country)
	rows, err := p.Q.Query(ctx, resolveSQL, storeCode, region)
	if err != nil {
		return nil, fmt.Errorf("query jurisdiction: %w", err)
	}
	defer rows.Close()

	var j *tax.Jurisdiction
	categories := map[string]int{}
	regions := map[[2]string]int{}
	for rows.Next() {
		var mode string
		var category, matchType, regionName, taxCode, rate *string
		if err := rows.Scan(&mode, &category, &matchType, &regionName, &taxCode, &rate); err != nil {
			return nil, fmt.Errorf("scan jurisdiction: %w", err)
		}
		if j == nil {
			j = &tax.Jurisdiction{RegionCode: strings.ToUpper(region), Mode: tax.Mode(mode)}
		}
		if category == nil {
			continue
		}
		ci, ok := categories[*category]
		if !ok {
			ci = len(j.Categories)
			categories[*category] = ci
			j.Categories = append(j.Categories, tax.Category{Name: *category, FieldMatchType: tax.FieldMatchType(deref(matchType))})
		}
		if regionName == nil || taxCode == nil || rate == nil {
			continue
		}
		pct, err := decimal.NewFromString(*rate)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", *rate, err)
		}
		key := [2]string{*category, *regionName}
		ri, ok := regions[key]
		if !ok {
			ri = len(j.Categories[ci].Regions)
			regions[key] = ri
			j.Categories[ci].Regions = append(j.Categories[ci].Regions, tax.Region{Name: *regionName, Rates: map[string]decimal.Decimal{}})
		}
		j.Categories[ci].Regions[ri].Rates[*taxCode] = pct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jurisdiction: %w", err)
	}
	return j, nil
}

// ActiveTaxCodes returns the store's enabled codes. Unknown stores have none.
func (p Postgres) ActiveTaxCodes(ctx context.Context, storeCode string) ([]string, error) {
	var codes []string
	err := p.Q.QueryRow(ctx, `SELECT active_tax_codes FROM tax_stores WHERE code = $1`, storeCode).Scan(&codes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query tax codes: %w", err)
	}
	return codes, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Execer is satisfied by pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Import replaces every store in seed inside one transaction. Stores absent
// from seed are left untouched.
func Import(ctx context.Context, db TxBeginner, seed *Seed) (err error) {
	if seed == nil {
		return fmt.Errorf("%w: nil seed", ErrInvalidSeed)
	}
	if err := seed.Validate(); err != nil {
		return err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, st := range seed.Stores {
		if err = importStore(ctx, tx, st); err != nil {
			return fmt.Errorf("import store %s: %w", st.Code, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func importStore(ctx context.Context, db Execer, st StoreSeed) error {
	code := strings.TrimSpace(st.Code)
	codes := st.ActiveTaxCodes
	if codes == nil {
		codes = []string{}
	}
	if _, err := db.Exec(ctx, `
		INSERT INTO tax_stores (code, active_tax_codes) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET active_tax_codes = EXCLUDED.active_tax_codes, updated_at = now()`,
		code, codes); err != nil {
		return err
	}
	if _, err := db.Exec(ctx, `DELETE FROM tax_jurisdictions WHERE store_code = $1`, code); err != nil {
		return err
	}
	for _, j := range st.Jurisdictions {
		jid := uuid.New()
		if _, err := db.Exec(ctx,
			`INSERT INTO tax_jurisdictions (id, store_code, region_code, mode) VALUES ($1, $2, $3, $4)`,
			jid, code, regionKey(j.RegionCode), string(j.Mode)); err != nil {
			return err
		}
		for pos, c := range j.Categories {
			cid := uuid.New()
			if _, err := db.Exec(ctx,
				`INSERT INTO tax_categories (id, jurisdiction_id, name, field_match_type, position) VALUES ($1, $2, $3, $4, $5)`,
				cid, jid, c.Name, string(c.FieldMatchType), pos); err != nil {
				return err
			}
			for _, r := range c.Regions {
				for taxCode, pct := range r.Rates {
					if _, err := db.Exec(ctx,
						`INSERT INTO tax_region_rates (category_id, region_name, tax_code, rate) VALUES ($1, $2, $3, $4::numeric)`,
						cid, r.Name, taxCode, pct.String()); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
