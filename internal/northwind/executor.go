// Package northwind provides read access to the Northwind analytics database:
// query execution with structured errors, schema introspection for prompt
// building, and the compatibility views the SQL generator is prompted
// against.
package northwind

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const (
	maxQueryBytes = 5000
	maxRows       = 500
	maxErrorChars = 200
)

// Result holds the outcome of a query. SQL-level failures populate Err
// instead of returning a Go error, so the repair loop can react to them.
type Result struct {
	Columns []string
	Rows    [][]any
	Err     string
}

// OK reports whether the query executed without a SQL-level error.
func (r Result) OK() bool { return r.Err == "" }

// DB wraps the Northwind SQLite database.
type DB struct {
	db          *sql.DB
	schemaCache []TableSchema
}

// Open opens the database, applies the session pragmas, and creates the
// compatibility views when they are missing.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single analytics connection; SQLite serializes writers anyway and a
	// single conn keeps temp views visible to every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", p, err)
		}
	}

	d := &DB{db: db}
	if err := d.ensureViews(); err != nil {
		db.Close()
		return nil, err
	}

	// Everything after setup is read-only. Prefix checks on incoming SQL
	// cannot catch forms like WITH ... DELETE, so enforce it on the
	// connection itself; writes come back as SQL-level errors.
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply PRAGMA query_only=ON: %w", err)
	}
	return d, nil
}

// ensureViews creates the order_items and product_costs views when absent.
// order_items normalizes the legacy "Order Details" table name; product_costs
// substitutes 70% of UnitPrice for any product without a recorded
// CostOfGoods.
func (d *DB) ensureViews() error {
	hasOrderItems, err := d.objectExists("order_items")
	if err != nil {
		return err
	}
	if !hasOrderItems {
		hasLegacy, err := d.objectExists("Order Details")
		if err != nil {
			return err
		}
		if hasLegacy {
			_, err = d.db.Exec(`CREATE TEMP VIEW order_items AS
				SELECT OrderID, ProductID, UnitPrice, Quantity, Discount FROM "Order Details"`)
			if err != nil {
				return fmt.Errorf("create order_items view: %w", err)
			}
		}
	}

	hasProductCosts, err := d.objectExists("product_costs")
	if err != nil {
		return err
	}
	if !hasProductCosts {
		costExpr := "0.7 * UnitPrice"
		hasCost, err := d.columnExists("products", "CostOfGoods")
		if err != nil {
			return err
		}
		if hasCost {
			costExpr = "COALESCE(CostOfGoods, 0.7 * UnitPrice)"
		}
		_, err = d.db.Exec(fmt.Sprintf(`CREATE TEMP VIEW product_costs AS
			SELECT ProductID, ProductName, UnitPrice, %s AS CostOfGoods FROM products`, costExpr))
		if err != nil {
			return fmt.Errorf("create product_costs view: %w", err)
		}
	}
	return nil
}

func (d *DB) objectExists(name string) (bool, error) {
	for _, master := range []string{"sqlite_master", "sqlite_temp_master"} {
		var n int
		err := d.db.QueryRow(
			"SELECT COUNT(*) FROM "+master+" WHERE type IN ('table','view') AND name = ?", name,
		).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", name, err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (d *DB) columnExists(table, column string) (bool, error) {
	rows, err := d.db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Execute runs a query and returns its rows, capped at 500. Empty and
// oversized queries are rejected without touching the database. SQL errors
// come back in Result.Err, truncated to 200 characters.
func (d *DB) Execute(ctx context.Context, query string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Err: "empty_query"}
	}
	if len(query) > maxQueryBytes {
		return Result{Err: "query_too_long"}
	}
	query = strings.TrimSuffix(query, ";")

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return Result{Err: truncateError(err)}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{Err: truncateError(err)}
	}

	result := Result{Columns: columns}
	for rows.Next() {
		if len(result.Rows) >= maxRows {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{Err: truncateError(err)}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Result{Err: truncateError(err)}
	}
	return result
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorChars {
		msg = msg[:maxErrorChars]
	}
	return msg
}
