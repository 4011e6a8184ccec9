package bigquery

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

// A TableName is a fully-qualified BigQuery table name.
type TableName struct {
	Project string
	Dataset string
	Table   string
}

// ParseTableName parses "project:dataset.table".
func ParseTableName(s string) (TableName, error) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return TableName{}, fmt.Errorf("bigquery: expected project:dataset.table, got %q", s)
	}
	rest := s[colon+1:]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return TableName{}, fmt.Errorf("bigquery: expected project:dataset.table, got %q", s)
	}
	n := TableName{Project: s[:colon], Dataset: rest[:dot], Table: rest[dot+1:]}
	if n.Project == "" || n.Dataset == "" || n.Table == "" {
		return TableName{}, fmt.Errorf("bigquery: expected project:dataset.table, got %q", s)
	}
	return n, nil
}

func (n TableName) String() string {
	return fmt.Sprintf("%s:%s.%s", n.Project, n.Dataset, n.Table)
}

// Quoted renders the name for standard SQL.
func (n TableName) Quoted() string {
	return fmt.Sprintf("`%s`.`%s`.`%s`", n.Project, n.Dataset, n.Table)
}

// TempName derives a staging table name in the same dataset.
func (n TableName) TempName(tag string) TableName {
	return TableName{Project: n.Project, Dataset: n.Dataset, Table: fmt.Sprintf("%s_temp_%s", n.Table, tag)}
}

// NeedsImportSQL reports whether loading this table from interchange
// CSV requires staging into a CSV-friendly temp table followed by an
// import query, because some column cannot be loaded directly.
func NeedsImportSQL(s *schema.Schema, t *schema.Table) (bool, error) {
	for _, c := range t.Columns {
		final, err := FromPortable(c.DataType, s, UsageFinalTable)
		if err != nil {
			return false, err
		}
		load, err := FromPortable(c.DataType, s, UsageCsvLoad)
		if err != nil {
			return false, err
		}
		if final.String() != load.String() || final.Array != load.Array {
			return true, nil
		}
		if final.NonArray.Kind == Geography {
			return true, nil
		}
	}
	return false, nil
}

// ImportSQL builds the query that reads a CSV-staged temp table and
// writes the final table, applying each column's load expression.
// Nested ARRAY and STRUCT columns arrive as JSON documents in STRING
// columns and are rebuilt by generated JavaScript UDFs, one per column.
func ImportSQL(s *schema.Schema, t *schema.Table, temp, dest TableName) (string, error) {
	var b strings.Builder
	var exprs []string
	for idx, c := range t.Columns {
		name, err := NewColumnName(c.Name)
		if err != nil {
			return "", err
		}
		final, err := FromPortable(c.DataType, s, UsageFinalTable)
		if err != nil {
			return "", err
		}
		load, err := FromPortable(c.DataType, s, UsageCsvLoad)
		if err != nil {
			return "", err
		}
		switch {
		case final.NonArray.Kind == Geography && !final.Array:
			exprs = append(exprs, fmt.Sprintf("SAFE.ST_GEOGFROMGEOJSON(%s) AS %s", name.Quoted(), name.Quoted()))
		case final.String() == load.String():
			exprs = append(exprs, name.Quoted())
		default:
			// Nested data: generate a UDF that parses the JSON string
			// and rebuilds the typed value.
			if err := writeImportUDF(&b, idx, final); err != nil {
				return "", fmt.Errorf("bigquery: column %q: %w", c.Name, err)
			}
			exprs = append(exprs, fmt.Sprintf("ImportJson_%d(%s) AS %s", idx, name.Quoted(), name.Quoted()))
		}
	}
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\nSELECT %s FROM %s",
		dest.Quoted(), columnList(t), strings.Join(exprs, ", "), temp.Quoted())
	return b.String(), nil
}

// ExportSQL builds the query that renders the table as interchange CSV
// for an extract job, applying each column's store expression.
func ExportSQL(s *schema.Schema, t *schema.Table, source TableName, whereClause string) (string, error) {
	var exprs []string
	for _, c := range t.Columns {
		name, err := NewColumnName(c.Name)
		if err != nil {
			return "", err
		}
		final, err := FromPortable(c.DataType, s, UsageFinalTable)
		if err != nil {
			return "", err
		}
		switch {
		case final.NonArray.Kind == Geography && !final.Array:
			exprs = append(exprs, fmt.Sprintf("ST_ASGEOJSON(%s) AS %s", name.Quoted(), name.Quoted()))
		case final.Array || final.NonArray.Kind == Struct:
			exprs = append(exprs, fmt.Sprintf("TO_JSON_STRING(%s) AS %s", name.Quoted(), name.Quoted()))
		default:
			exprs = append(exprs, name.Quoted())
		}
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), source.Quoted())
	if whereClause != "" {
		sql += fmt.Sprintf(" WHERE (%s)", whereClause)
	}
	return sql, nil
}

// MergeSQL builds the MERGE statement that upserts a staged temp table
// into the destination on the given key columns.
func MergeSQL(t *schema.Table, temp, dest TableName, upsertOn []string) (string, error) {
	for _, k := range upsertOn {
		if _, ok := t.Column(k); !ok {
			return "", fmt.Errorf("bigquery: upsert key column %q does not appear in schema", k)
		}
	}
	conds := make([]string, len(upsertOn))
	for i, k := range upsertOn {
		conds[i] = fmt.Sprintf("D.`%s` = T.`%s`", k, k)
	}
	isKey := make(map[string]bool, len(upsertOn))
	for _, k := range upsertOn {
		isKey[k] = true
	}
	var sets, names, values []string
	for _, c := range t.Columns {
		names = append(names, "`"+c.Name+"`")
		values = append(values, "T.`"+c.Name+"`")
		if !isKey[c.Name] {
			sets = append(sets, fmt.Sprintf("D.`%s` = T.`%s`", c.Name, c.Name))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE %s AS D\nUSING %s AS T\nON %s\n",
		dest.Quoted(), temp.Quoted(), strings.Join(conds, " AND "))
	if len(sets) > 0 {
		fmt.Fprintf(&b, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		strings.Join(names, ", "), strings.Join(values, ", "))
	return b.String(), nil
}

func columnList(t *schema.Table) string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = "`" + c.Name + "`"
	}
	return strings.Join(names, ", ")
}

// writeImportUDF emits a CREATE TEMP FUNCTION that deserializes a JSON
// string into ty. A miniature compiler that emits JavaScript.
func writeImportUDF(b *strings.Builder, idx int, ty DataType) error {
	fmt.Fprintf(b, "CREATE TEMP FUNCTION ImportJson_%d(json_string STRING)\nRETURNS %s\nLANGUAGE js AS \"\"\"\nconst json = JSON.parse(json_string);\nreturn ", idx, ty)
	if err := writeTransformExpr(b, "json", ty); err != nil {
		return err
	}
	b.WriteString(";\n\"\"\";\n")
	return nil
}

func writeTransformExpr(b *strings.Builder, input string, ty DataType) error {
	if ty.Array {
		fmt.Fprintf(b, "%s.map(function (e) { return ", input)
		if err := writeNonArrayTransformExpr(b, "e", ty.NonArray); err != nil {
			return err
		}
		b.WriteString("; })")
		return nil
	}
	return writeNonArrayTransformExpr(b, input, ty.NonArray)
}

func writeNonArrayTransformExpr(b *strings.Builder, input string, na NonArrayType) error {
	switch na.Kind {
	case Bool, Float64, Int64, String:
		b.WriteString(input)
	case Date, Timestamp:
		// These go through Date even when no time zone is involved.
		fmt.Fprintf(b, "new Date(%s)", input)
	case Stringified:
		switch na.Stringified.(type) {
		case *schema.GeoJSONType, *schema.JSONType, *schema.StructType, *schema.ArrayType:
			fmt.Fprintf(b, "JSON.stringify(%s)", input)
		case *schema.UUIDType:
			b.WriteString(input)
		default:
			return fmt.Errorf("the type %T is not expected to be stringified in BigQuery", na.Stringified)
		}
	case Struct:
		b.WriteString("{")
		for i, f := range na.Fields {
			if i > 0 {
				b.WriteString(",")
			}
			if f.Name == nil {
				return fmt.Errorf("cannot import unnamed struct field")
			}
			fmt.Fprintf(b, "%s: ", f.Name.JavaScriptQuoted())
			if err := writeTransformExpr(b, fmt.Sprintf("%s[%s]", input, f.Name.JavaScriptQuoted()), f.Type); err != nil {
				return err
			}
		}
		b.WriteString("}")
	default:
		return fmt.Errorf("cannot import nested values of type %s into BigQuery yet", na)
	}
	return nil
}
