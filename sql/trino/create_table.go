package trino

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

type (
	// A TableName is a catalog-qualified Trino table name.
	TableName struct {
		Catalog string
		Schema  string
		Table   string
	}

	// A CreateTable is a Trino table declaration.
	CreateTable struct {
		Name      TableName
		Columns   []Column
		OrReplace bool
		// With holds table properties, used for Hive CSV wrapper
		// tables (external_location, format).
		With map[string]string
	}

	// A Column is one column of a CreateTable.
	Column struct {
		Name    string
		Type    DataType
		NotNull bool
	}
)

// ParseTableName parses "catalog.schema.table".
func ParseTableName(s string) (TableName, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TableName{}, fmt.Errorf("trino: expected catalog.schema.table, got %q", s)
	}
	return TableName{Catalog: parts[0], Schema: parts[1], Table: parts[2]}, nil
}

func (n TableName) String() string {
	return fmt.Sprintf("%s.%s.%s", n.Catalog, n.Schema, n.Table)
}

// Quoted renders the name for SQL.
func (n TableName) Quoted() string {
	return fmt.Sprintf("%s.%s.%s", QuoteIdent(n.Catalog), QuoteIdent(n.Schema), QuoteIdent(n.Table))
}

// TempName derives a staging table name in the same schema.
func (n TableName) TempName(tag string) TableName {
	return TableName{Catalog: n.Catalog, Schema: n.Schema, Table: fmt.Sprintf("%s_temp_%s", n.Table, tag)}
}

// NewCreateTable builds a CreateTable from portable columns, applying
// the connector's storage transforms and capability downgrades.
func NewCreateTable(name TableName, s *schema.Schema, columns []*schema.Column, connector ConnectorType) (*CreateTable, error) {
	ct := &CreateTable{Name: name}
	for _, c := range columns {
		if err := connector.CheckColumnName(c.Name); err != nil {
			return nil, err
		}
		ty, err := FromPortable(c.DataType, s)
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", c.Name, err)
		}
		stored := connector.StorageTypeFor(ty)
		ct.Columns = append(ct.Columns, Column{
			Name:    c.Name,
			Type:    stored,
			NotNull: !c.IsNullable && connector.SupportsNotNullConstraint(),
		})
	}
	return ct, nil
}

// ToTable converts this declaration back to a portable table.
func (ct *CreateTable) ToTable() (*schema.Table, error) {
	t := &schema.Table{Name: ct.Name.Table}
	for _, c := range ct.Columns {
		ty, err := c.Type.ToPortable()
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", c.Name, err)
		}
		t.Columns = append(t.Columns, &schema.Column{Name: c.Name, IsNullable: !c.NotNull, DataType: ty})
	}
	return t, nil
}

// String prints the CREATE TABLE statement.
func (ct *CreateTable) String() string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if ct.OrReplace {
		b.WriteString("OR REPLACE ")
	}
	fmt.Fprintf(&b, "TABLE %s (\n", ct.Name.Quoted())
	for i, col := range ct.Columns {
		fmt.Fprintf(&b, "    %s %s", QuoteIdent(col.Name), col.Type)
		if col.NotNull {
			b.WriteString(" NOT NULL")
		}
		if i+1 < len(ct.Columns) {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	if len(ct.With) > 0 {
		keys := make([]string, 0, len(ct.With))
		for k := range ct.With {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		props := make([]string, len(keys))
		for i, k := range keys {
			props[i] = fmt.Sprintf("%s = %s", k, QuoteString(ct.With[k]))
		}
		fmt.Fprintf(&b, " WITH (%s)", strings.Join(props, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

// SelectExprs builds the SELECT list that reads the table back in
// portable form, applying each column's load expression.
func SelectExprs(s *schema.Schema, columns []*schema.Column, connector ConnectorType) ([]string, error) {
	exprs := make([]string, 0, len(columns))
	for _, c := range columns {
		ty, err := FromPortable(c.DataType, s)
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", c.Name, err)
		}
		tr := connector.StorageTransformFor(ty)
		expr := tr.LoadExpr(QuoteIdent(c.Name), ty)
		if expr != QuoteIdent(c.Name) {
			expr = fmt.Sprintf("%s AS %s", expr, QuoteIdent(c.Name))
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// StoreExprs builds the expression list that writes portable values
// into the table's storage form, applying each column's store
// expression to the given value expressions.
func StoreExprs(s *schema.Schema, columns []*schema.Column, valueExprs []string, connector ConnectorType) ([]string, error) {
	if len(columns) != len(valueExprs) {
		return nil, fmt.Errorf("trino: %d columns but %d value expressions", len(columns), len(valueExprs))
	}
	exprs := make([]string, 0, len(columns))
	for i, c := range columns {
		ty, err := FromPortable(c.DataType, s)
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", c.Name, err)
		}
		tr := connector.StorageTransformFor(ty)
		exprs = append(exprs, tr.StoreExpr(valueExprs[i], ty))
	}
	return exprs, nil
}
