package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

// CatalogTable is the table holding catalog entities. Aliases and tags are
// stored as comma-separated text.
const CatalogTable = "catalog_entities"

const listSeparator = ","

var catalogColumns = []interface{}{
	"id", "name", "aliases", "brand", "category", "description",
	"tags", "stock", "price", "updated_at",
}

var _ repositories.CatalogRepository = (*CatalogAdapter)(nil)

// CatalogAdapter implements CatalogRepository on a SQL store
type CatalogAdapter struct {
	db      *sql.DB
	goqu    *goqu.Database
	dialect string
}

// NewCatalogAdapter creates a catalog adapter for the given goqu dialect
// ("postgres" or "sqlite3")
func NewCatalogAdapter(db *sql.DB, dialect string) *CatalogAdapter {
	return &CatalogAdapter{
		db:      db,
		goqu:    goqu.New(dialect, db),
		dialect: dialect,
	}
}

// NewPostgresCatalogAdapter creates a catalog adapter over a PostgreSQL client
func NewPostgresCatalogAdapter(client *postgres.Client) *CatalogAdapter {
	return NewCatalogAdapter(client.DB(), "postgres")
}

// EnsureSchema creates the catalog table if it does not exist
func (a *CatalogAdapter) EnsureSchema(ctx context.Context) error {
	timestampType := "TIMESTAMPTZ"
	priceType := "DOUBLE PRECISION"
	if a.dialect == "sqlite3" {
		timestampType = "DATETIME"
		priceType = "REAL"
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + CatalogTable + ` (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	aliases     TEXT NOT NULL DEFAULT '',
	brand       TEXT,
	category    TEXT,
	description TEXT,
	tags        TEXT NOT NULL DEFAULT '',
	stock       INTEGER NOT NULL DEFAULT 0,
	price       ` + priceType + `,
	updated_at  ` + timestampType + ` NOT NULL
)`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.NewExternalError("failed to create catalog table", err)
	}
	return nil
}

// Clear deletes every catalog entity and returns how many were removed
func (a *CatalogAdapter) Clear(ctx context.Context) (int64, error) {
	query, args, err := a.goqu.Delete(CatalogTable).Prepared(true).ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build delete query", err)
	}
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewExternalError("failed to clear catalog", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewExternalError("failed to count cleared rows", err)
	}
	return n, nil
}

// ListEntities returns catalog entities matching the filter, ordered by id
func (a *CatalogAdapter) ListEntities(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error) {
	query, args, err := a.goqu.Select(catalogColumns...).
		From(CatalogTable).
		Where(filterExpressions(filter)...).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to list catalog entities", err)
	}
	defer rows.Close()

	var list []*entities.CatalogEntity
	for rows.Next() {
		e := &entities.CatalogEntity{}
		var aliases, brand, category, description, tags sql.NullString
		var price sql.NullFloat64

		err := rows.Scan(
			&e.ID,
			&e.Name,
			&aliases,
			&brand,
			&category,
			&description,
			&tags,
			&e.Stock,
			&price,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan catalog entity", err)
		}

		e.Aliases = splitList(aliases.String)
		e.Brand = brand.String
		e.Category = category.String
		e.Description = description.String
		e.Tags = splitList(tags.String)
		if price.Valid {
			p := price.Float64
			e.Price = &p
		}

		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewExternalError("failed to read catalog entities", err)
	}

	return list, nil
}

// Upsert writes entities, replacing rows with the same id
func (a *CatalogAdapter) Upsert(ctx context.Context, list ...*entities.CatalogEntity) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]string, 0, len(list))
	rows := make([]interface{}, 0, len(list))
	for _, e := range list {
		record := goqu.Record{
			"id":          e.ID,
			"name":        e.Name,
			"aliases":     joinList(e.Aliases),
			"brand":       sql.NullString{String: e.Brand, Valid: e.Brand != ""},
			"category":    sql.NullString{String: e.Category, Valid: e.Category != ""},
			"description": sql.NullString{String: e.Description, Valid: e.Description != ""},
			"tags":        joinList(e.Tags),
			"stock":       e.Stock,
			"price":       sql.NullFloat64{},
			"updated_at":  e.UpdatedAt.UTC(),
		}
		if e.Price != nil {
			record["price"] = sql.NullFloat64{Float64: *e.Price, Valid: true}
		}
		ids = append(ids, e.ID)
		rows = append(rows, record)
	}

	deleteQuery, deleteArgs, err := a.goqu.Delete(CatalogTable).
		Where(goqu.Ex{"id": ids}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	insertQuery, insertArgs, err := a.goqu.Insert(CatalogTable).
		Rows(rows...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewExternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return apperrors.NewExternalError("failed to replace catalog entities", err)
	}
	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		return apperrors.NewExternalError("failed to insert catalog entities", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewExternalError("failed to commit catalog entities", err)
	}
	return nil
}

func filterExpressions(f repositories.CatalogFilter) []exp.Expression {
	var exprs []exp.Expression
	if f.Category != "" {
		exprs = append(exprs, goqu.Func("LOWER", goqu.C("category")).Eq(strings.ToLower(f.Category)))
	}
	if f.Brand != "" {
		exprs = append(exprs, goqu.Func("LOWER", goqu.C("brand")).Eq(strings.ToLower(f.Brand)))
	}
	if f.InStockOnly {
		exprs = append(exprs, goqu.C("stock").Gt(0))
	}
	if f.MinPrice != nil {
		exprs = append(exprs, goqu.C("price").Gte(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		exprs = append(exprs, goqu.C("price").Lte(*f.MaxPrice))
	}
	return exprs
}

func joinList(values []string) string {
	return strings.Join(values, listSeparator)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, listSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
