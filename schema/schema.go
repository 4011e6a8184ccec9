// Package schema defines the portable "interchange" table schema used to
// move tables between backends.
//
// Converting schemas between n databases pairwise would need n*(n-1)
// conversions; instead every backend converts to and from this single
// portable model. The model is deliberately a happy medium: less precise
// than PostgreSQL's type system, more precise than BigQuery's.
package schema

import (
	"fmt"
)

type (
	// A Schema describes a set of named types plus one or more tables.
	// Schemas are values: they are created by parsing and never mutated.
	Schema struct {
		// NamedDataTypes holds enum and struct definitions that columns
		// may reference with a NamedType.
		NamedDataTypes []*NamedDataType
		// Tables in the schema. Most operations use only the first table.
		Tables []*Table
	}

	// A NamedDataType associates a qualified name with a data type
	// definition, normally a StructType or a OneOfType.
	NamedDataType struct {
		Name     string
		DataType DataType
	}

	// A Table is an ordered list of columns.
	Table struct {
		Name    string
		Columns []*Column
	}

	// A Column holds the name, nullability, data type and optional
	// comment of one table column. Column names are case-sensitive and
	// preserve their case on the wire even where a backend case-folds
	// internally.
	Column struct {
		Name       string
		IsNullable bool
		DataType   DataType
		Comment    string
	}
)

// FromSingleTable wraps a single table in a schema with no named types.
// This is the form produced by parsing legacy schema documents.
func FromSingleTable(t *Table) *Schema {
	return &Schema{Tables: []*Table{t}}
}

// Table returns the first table that matched the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// MainTable returns the table a data transfer operates on. Portable
// schemas used for transfers always carry exactly one table.
func (s *Schema) MainTable() (*Table, error) {
	if len(s.Tables) != 1 {
		return nil, fmt.Errorf("schema: expected 1 table, found %d", len(s.Tables))
	}
	return s.Tables[0], nil
}

// ResolveNamed returns the definition of the named type with the given
// qualified name.
func (s *Schema) ResolveNamed(name string) (*NamedDataType, error) {
	for _, nt := range s.NamedDataTypes {
		if nt.Name == name {
			return nt, nil
		}
	}
	return nil, fmt.Errorf("schema: unknown named type %q", name)
}

// Validate checks the schema invariants: every NamedType reference
// resolves within the schema, and struct field names are unique and
// non-empty.
func (s *Schema) Validate() error {
	for _, nt := range s.NamedDataTypes {
		if err := s.validateType(nt.DataType); err != nil {
			return fmt.Errorf("schema: named type %q: %w", nt.Name, err)
		}
	}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if err := s.validateType(c.DataType); err != nil {
				return fmt.Errorf("schema: table %q column %q: %w", t.Name, c.Name, err)
			}
		}
	}
	return nil
}

func (s *Schema) validateType(dt DataType) error {
	switch dt := dt.(type) {
	case *ArrayType:
		return s.validateType(dt.Elem)
	case *StructType:
		seen := make(map[string]bool, len(dt.Fields))
		for _, f := range dt.Fields {
			if f.Name == "" {
				return fmt.Errorf("struct field with empty name")
			}
			if seen[f.Name] {
				return fmt.Errorf("duplicate struct field %q", f.Name)
			}
			seen[f.Name] = true
			if err := s.validateType(f.DataType); err != nil {
				return err
			}
		}
	case *NamedType:
		if _, err := s.ResolveNamed(dt.Name); err != nil {
			return err
		}
	case *OneOfType:
		seen := make(map[string]bool, len(dt.Values))
		for _, v := range dt.Values {
			if seen[v] {
				return fmt.Errorf("duplicate enum value %q", v)
			}
			seen[v] = true
		}
	}
	return nil
}

// Column returns the first column that matched the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
