package northwind

import (
	"context"
	"fmt"
	"strings"
)

// TableSchema is a table or view name with its creation SQL.
type TableSchema struct {
	Name string
	SQL  string
}

// relevantTables limits the schema shown to the SQL generator. Northwind
// dumps vary in casing, so both spellings are accepted.
var relevantTables = map[string]bool{
	"Orders": true, "Products": true, "Customers": true, "Categories": true,
	"Suppliers": true, "Employees": true, "Shippers": true, "Regions": true,
	"Territories": true,
	"orders": true, "products": true, "customers": true, "order_items": true,
	"categories": true, "suppliers": true, "employees": true, "shippers": true,
	"product_costs": true,
}

const orderItemsDDL = "CREATE VIEW order_items AS SELECT OrderID, ProductID, UnitPrice, Quantity, Discount FROM [Order Details]"

const productCostsDDL = "CREATE VIEW product_costs AS SELECT ProductID, ProductName, UnitPrice, COALESCE(CostOfGoods, 0.7 * UnitPrice) AS CostOfGoods FROM products"

// Schema returns the filtered table schemas, cached after the first call.
func (d *DB) Schema(ctx context.Context) ([]TableSchema, error) {
	if d.schemaCache != nil {
		return d.schemaCache, nil
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT name, COALESCE(sql, '') FROM sqlite_master WHERE type IN ('table','view') ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var schemas []TableSchema
	seen := make(map[string]bool)
	for rows.Next() {
		var ts TableSchema
		if err := rows.Scan(&ts.Name, &ts.SQL); err != nil {
			return nil, err
		}
		if !relevantTables[ts.Name] {
			continue
		}
		if ts.Name == "order_items" {
			ts.SQL = orderItemsDDL
		}
		schemas = append(schemas, ts)
		seen[ts.Name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The compatibility views live in the temp schema and don't show up in
	// sqlite_master; report them so the generator knows they exist.
	if !seen["order_items"] {
		schemas = append(schemas, TableSchema{Name: "order_items", SQL: orderItemsDDL})
	}
	if !seen["product_costs"] {
		schemas = append(schemas, TableSchema{Name: "product_costs", SQL: productCostsDDL})
	}

	d.schemaCache = schemas
	return schemas, nil
}

// SchemaText formats the schema for inclusion in a generation prompt. Each
// entry is truncated to keep the prompt within a local model's context.
func (d *DB) SchemaText(ctx context.Context) (string, error) {
	schemas, err := d.Schema(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, ts := range schemas {
		ddl := ts.SQL
		if len(ddl) > 200 {
			ddl = ddl[:200]
		}
		fmt.Fprintf(&b, "Table %s: %s\n", ts.Name, ddl)
	}
	return b.String(), nil
}
