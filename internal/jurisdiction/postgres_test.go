package jurisdiction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tax/internal/tax"
)

func str(s string) *string { return &s }

// fakeRows serves fixed rows; methods not overridden panic through the nil embedded interface.
type fakeRows struct {
	pgx.Rows
	data   [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d columns", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				*d = str(v.(string))
			}
		case *[]string:
			*d = v.([]string)
		default:
			return fmt.Errorf("scan: unsupported dest %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     { r.closed = true }

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	rows := &fakeRows{data: [][]any{r.values}}
	rows.Next()
	return rows.Scan(dest...)
}

type fakeQuerier struct {
	rows  [][]any
	row   fakeRow
	args  []any
	query string
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.query, q.args = sql, args
	return &fakeRows{data: q.rows}, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.query, q.args = sql, args
	return q.row
}

func TestPostgresResolveGroupsRows(t *testing.T) {
	q := &fakeQuerier{rows: [][]any{
		{"EXCLUSIVE", "GST", "COUNTRY", "CA", "GOODS", "5.0000"},
		{"EXCLUSIVE", "GST", "COUNTRY", "CA", "SHIPPING", "5.0000"},
		{"EXCLUSIVE", "PST", "SUBCOUNTRY", "BC", "GOODS", "7.0000"},
		{"EXCLUSIVE", "PST", "SUBCOUNTRY", "ON", "GOODS", "8.0000"},
		{"EXCLUSIVE", "EMPTY", "CITY", nil, nil, nil},
	}}
	j, err := Postgres{Q: q}.Resolve(context.Background(), "toko-ca", &tax.Address{Country: " ca "})
	require.NoError(t, err)
	require.Equal(t, []any{"toko-ca", "ca"}, q.args)
	require.Equal(t, "CA", j.RegionCode)
	require.Equal(t, tax.ModeExclusive, j.Mode)
	require.Len(t, j.Categories, 3)

	gst := j.Categories[0]
	require.Equal(t, tax.MatchCountry, gst.FieldMatchType)
	require.Len(t, gst.Regions, 1)
	require.Len(t, gst.Regions[0].Rates, 2)
	require.Equal(t, "5", gst.Regions[0].Rates["SHIPPING"].String())

	pst := j.Categories[1]
	require.Len(t, pst.Regions, 2)
	require.Equal(t, "ON", pst.Regions[1].Name)
	require.Empty(t, j.Categories[2].Regions)
}

func TestPostgresResolveNoRows(t *testing.T) {
	j, err := Postgres{Q: &fakeQuerier{}}.Resolve(context.Background(), "toko-ca", &tax.Address{Country: "US"})
	require.NoError(t, err)
	require.Nil(t, j)

	j, err = Postgres{Q: &fakeQuerier{}}.Resolve(context.Background(), "toko-ca", nil)
	require.NoError(t, err)
	require.Nil(t, j)
}

func TestPostgresResolveBadRate(t *testing.T) {
	q := &fakeQuerier{rows: [][]any{{"INCLUSIVE", "VAT", "COUNTRY", "GB", "GOODS", "twenty"}}}
	_, err := Postgres{Q: q}.Resolve(context.Background(), "toko-uk", &tax.Address{Country: "GB"})
	require.Error(t, err)
}

func TestPostgresActiveTaxCodes(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []any{[]string{"GOODS", "SHIPPING"}}}}
	codes, err := Postgres{Q: q}.ActiveTaxCodes(context.Background(), "toko-ca")
	require.NoError(t, err)
	require.Equal(t, []string{"GOODS", "SHIPPING"}, codes)

	q = &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	codes, err = Postgres{Q: q}.ActiveTaxCodes(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, codes)

	boom := errors.New("conn reset")
	q = &fakeQuerier{row: fakeRow{err: boom}}
	_, err = Postgres{Q: q}.ActiveTaxCodes(context.Background(), "toko-ca")
	require.ErrorIs(t, err, boom)
}

type fakeTx struct {
	pgx.Tx
	execs      []string
	failOn     string
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, strings.TrimSpace(sql))
	if tx.failOn != "" && strings.Contains(sql, tx.failOn) {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

type fakeBeginner struct{ tx *fakeTx }

func (b fakeBeginner) Begin(context.Context) (pgx.Tx, error) { return b.tx, nil }

func TestImportWritesSeedInOneTransaction(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, Import(context.Background(), fakeBeginner{tx: tx}, parseSample(t)))
	require.True(t, tx.committed)
	require.False(t, tx.rolledBack)

	// per store: upsert + delete; toko-ca: 1 jurisdiction, 2 categories, 3 rates; toko-uk: 1, 1, 1
	require.Len(t, tx.execs, 2+1+2+3+2+1+1+1)
	require.True(t, strings.HasPrefix(tx.execs[0], "INSERT INTO tax_stores"))
	require.True(t, strings.HasPrefix(tx.execs[1], "DELETE FROM tax_jurisdictions"))
}

func TestImportRollsBackOnFailure(t *testing.T) {
	tx := &fakeTx{failOn: "tax_region_rates"}
	err := Import(context.Background(), fakeBeginner{tx: tx}, parseSample(t))
	require.Error(t, err)
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)

	err = Import(context.Background(), fakeBeginner{tx: &fakeTx{}}, &Seed{Stores: []StoreSeed{{Code: ""}}})
	require.ErrorIs(t, err, ErrInvalidSeed)
}

func TestPgx5URL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/toko", pgx5URL("postgres://u:p@localhost:5432/toko"))
	require.Equal(t, "pgx5://localhost/toko", pgx5URL("postgresql://localhost/toko"))
	require.Equal(t, "pgx5://localhost/toko", pgx5URL("pgx5://localhost/toko"))
}
