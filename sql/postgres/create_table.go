package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

type (
	// A TableName is an optionally schema-qualified table name.
	TableName struct {
		Schema string // "" means the connection's default schema.
		Table  string
	}

	// A CreateTable is a PostgreSQL table declaration.
	CreateTable struct {
		Name        TableName
		Columns     []Column
		IfNotExists bool
		// Temporary tables are used for upsert staging.
		Temporary bool
	}

	// A Column is one column of a CreateTable.
	Column struct {
		Name       string
		IsNullable bool
		Type       DataType
	}
)

// ParseTableName splits an optionally qualified "schema.table" name.
func ParseTableName(s string) (TableName, error) {
	switch parts := strings.Split(s, "."); len(parts) {
	case 1:
		return TableName{Table: parts[0]}, nil
	case 2:
		return TableName{Schema: parts[0], Table: parts[1]}, nil
	default:
		return TableName{}, fmt.Errorf("postgres: cannot parse table name %q", s)
	}
}

// Quoted prints the name with identifiers quoted.
func (n TableName) Quoted() string {
	if n.Schema == "" {
		return pq.QuoteIdentifier(n.Table)
	}
	return pq.QuoteIdentifier(n.Schema) + "." + pq.QuoteIdentifier(n.Table)
}

// UnquotedString prints the name in "schema.table" form for display.
func (n TableName) UnquotedString() string {
	if n.Schema == "" {
		return n.Table
	}
	return n.Schema + "." + n.Table
}

// TempName derives a name for a staging table alongside this one.
func (n TableName) TempName(tag string) TableName {
	return TableName{Schema: n.Schema, Table: fmt.Sprintf("%s_temp_%s", n.Table, tag)}
}

// NewCreateTable builds a CreateTable from a table name and portable
// columns. The caller passes the destination name explicitly; the
// portable table's own name is usually an input name and using it
// directly is a mistake.
func NewCreateTable(name TableName, columns []*schema.Column) (*CreateTable, error) {
	ct := &CreateTable{Name: name, Columns: make([]Column, 0, len(columns))}
	for _, c := range columns {
		ty, err := FromPortable(c.DataType)
		if err != nil {
			return nil, fmt.Errorf("postgres: column %q: %w", c.Name, err)
		}
		ct.Columns = append(ct.Columns, Column{Name: c.Name, IsNullable: c.IsNullable, Type: ty})
	}
	return ct, nil
}

// ToTable converts this declaration back to a portable table.
func (ct *CreateTable) ToTable() (*schema.Table, error) {
	t := &schema.Table{Name: ct.Name.UnquotedString()}
	for _, c := range ct.Columns {
		ty, err := c.Type.ToPortable()
		if err != nil {
			return nil, fmt.Errorf("postgres: column %q: %w", c.Name, err)
		}
		t.Columns = append(t.Columns, &schema.Column{Name: c.Name, IsNullable: c.IsNullable, DataType: ty})
	}
	return t, nil
}

// String prints the CREATE TABLE statement.
func (ct *CreateTable) String() string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if ct.Temporary {
		b.WriteString("TEMPORARY ")
	}
	b.WriteString("TABLE")
	if ct.IfNotExists {
		b.WriteString(" IF NOT EXISTS")
	}
	fmt.Fprintf(&b, " %s (\n", ct.Name.Quoted())
	for i, col := range ct.Columns {
		fmt.Fprintf(&b, "    %s %s", pq.QuoteIdentifier(col.Name), col.Type)
		if !col.IsNullable {
			b.WriteString(" NOT NULL")
		}
		if i+1 < len(ct.Columns) {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");\n")
	return b.String()
}

// ColumnNames returns the quoted column list for COPY and INSERT.
func (ct *CreateTable) ColumnNames() string {
	quoted := make([]string, len(ct.Columns))
	for i, c := range ct.Columns {
		quoted[i] = pq.QuoteIdentifier(c.Name)
	}
	return strings.Join(quoted, ",")
}

// ExportSQL builds the COPY (SELECT ...) TO STDOUT statement used to
// read this table as interchange CSV.
func (ct *CreateTable) ExportSQL(whereClause string) string {
	var b strings.Builder
	b.WriteString("COPY (")
	b.WriteString(ct.ExportSelectSQL(whereClause))
	b.WriteString(") TO STDOUT WITH CSV HEADER")
	return b.String()
}

// ExportSelectSQL builds the SELECT expression list, converting columns
// that need a wire rewrite (geometry to GeoJSON, for one) on the way
// out.
func (ct *CreateTable) ExportSelectSQL(whereClause string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range ct.Columns {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(col.exportSelectExpr())
	}
	fmt.Fprintf(&b, " FROM %s", ct.Name.Quoted())
	if whereClause != "" {
		fmt.Fprintf(&b, " WHERE (%s)", whereClause)
	}
	return b.String()
}

func (c Column) exportSelectExpr() string {
	ident := pq.QuoteIdentifier(c.Name)
	if c.Type.DimensionCount == 0 && c.Type.Scalar == Geometry {
		return fmt.Sprintf("ST_AsGeoJSON(%s) AS %s", ident, ident)
	}
	if c.Type.DimensionCount > 0 {
		// Arrays travel as JSON documents inside CSV cells.
		return fmt.Sprintf("array_to_json(%s) AS %s", ident, ident)
	}
	return ident
}

// CopyInSQL builds the COPY ... FROM STDIN statement used to load
// interchange CSV into this table.
func (ct *CreateTable) CopyInSQL() string {
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH CSV HEADER", ct.Name.Quoted(), ct.ColumnNames())
}

// UpsertSQL builds the statements that merge a staging table into the
// destination on the given key columns. PostgreSQL has INSERT ... ON
// CONFLICT, but it requires a unique index naming the exact keys, so we
// use the portable DELETE+INSERT rewrite inside one transaction: rows
// whose keys appear in the staging table are replaced, all other rows
// are kept.
func (ct *CreateTable) UpsertSQL(temp TableName, upsertOn []string) []string {
	keyCond := make([]string, len(upsertOn))
	for i, k := range upsertOn {
		q := pq.QuoteIdentifier(k)
		keyCond[i] = fmt.Sprintf("%s.%s = %s.%s", ct.Name.Quoted(), q, temp.Quoted(), q)
	}
	del := fmt.Sprintf("DELETE FROM %s USING %s WHERE %s",
		ct.Name.Quoted(), temp.Quoted(), strings.Join(keyCond, " AND "))
	ins := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		ct.Name.Quoted(), ct.ColumnNames(), ct.ColumnNames(), temp.Quoted())
	return []string{del, ins}
}

// CheckUpsertKeys verifies the upsert key columns exist and are NOT NULL.
func (ct *CreateTable) CheckUpsertKeys(upsertOn []string) error {
	for _, k := range upsertOn {
		found := false
		for _, c := range ct.Columns {
			if c.Name == k {
				if c.IsNullable {
					return fmt.Errorf("postgres: upsert key column %q must be NOT NULL", k)
				}
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("postgres: upsert key column %q does not appear in schema", k)
		}
	}
	return nil
}
