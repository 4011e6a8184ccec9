package trino

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/schema"
	trinosql "github.com/dbcrossbar/dbcrossbar/sql/trino"
)

// cellToValueExpr renders one interchange CSV cell as a Trino SQL value
// expression of the column's portable type. The storage transform is
// applied on top of this by the caller.
func cellToValueExpr(s *schema.Schema, col *schema.Column, cell string) (string, error) {
	if cell == "" {
		if _, isText := col.DataType.(*schema.TextType); !isText {
			if !col.IsNullable {
				return "", fmt.Errorf("unexpected NULL value")
			}
			return "NULL", nil
		}
	}
	return typedValueExpr(s, col.DataType, cell)
}

func typedValueExpr(s *schema.Schema, dt schema.DataType, cell string) (string, error) {
	switch dt := dt.(type) {
	case *schema.ArrayType, *schema.StructType:
		native, err := trinosql.FromPortable(dt, s)
		if err != nil {
			return "", err
		}
		if !json.Valid([]byte(cell)) {
			return "", fmt.Errorf("cannot parse %q as JSON", cell)
		}
		return fmt.Sprintf("CAST(JSON %s AS %s)", trinosql.QuoteString(cell), native), nil
	case *schema.BoolType:
		v, err := csvdata.ParseBoolCell(cell)
		if err != nil {
			return "", err
		}
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case *schema.DateType:
		return "DATE " + trinosql.QuoteString(cell), nil
	case *schema.DecimalType:
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return "", fmt.Errorf("cannot parse %q as decimal", cell)
		}
		return fmt.Sprintf("DECIMAL %s", trinosql.QuoteString(cell)), nil
	case *schema.Float32Type, *schema.Float64Type:
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return "", fmt.Errorf("cannot parse %q as float", cell)
		}
		return cell, nil
	case *schema.GeoJSONType:
		if !json.Valid([]byte(cell)) {
			return "", fmt.Errorf("cannot parse %q as GeoJSON", cell)
		}
		return fmt.Sprintf("from_geojson_geometry(%s)", trinosql.QuoteString(cell)), nil
	case *schema.Int16Type, *schema.Int32Type, *schema.Int64Type:
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			return "", fmt.Errorf("cannot parse %q as integer", cell)
		}
		return cell, nil
	case *schema.JSONType:
		if !json.Valid([]byte(cell)) {
			return "", fmt.Errorf("cannot parse %q as JSON", cell)
		}
		return "JSON " + trinosql.QuoteString(cell), nil
	case *schema.NamedType:
		def, err := s.ResolveNamed(dt.Name)
		if err != nil {
			return "", err
		}
		return typedValueExpr(s, def.DataType, cell)
	case *schema.OneOfType, *schema.TextType:
		return trinosql.QuoteString(cell), nil
	case *schema.TimestampWithoutTimeZoneType:
		return "TIMESTAMP " + trinosql.QuoteString(cell), nil
	case *schema.TimestampWithTimeZoneType:
		return "TIMESTAMP " + trinosql.QuoteString(cell), nil
	case *schema.UUIDType:
		return "UUID " + trinosql.QuoteString(cell), nil
	default:
		return "", fmt.Errorf("cannot render %T as a Trino literal", dt)
	}
}

// valueToCell converts one JSON value from a statement response into
// its interchange CSV cell.
func valueToCell(s *schema.Schema, dt schema.DataType, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if nt, ok := dt.(*schema.NamedType); ok {
		def, err := s.ResolveNamed(nt.Name)
		if err != nil {
			return "", err
		}
		return valueToCell(s, def.DataType, v)
	}
	if schema.SerializesAsJSONForCSV(dt) {
		// JSON columns arrive as encoded strings; everything else as
		// structured values we re-encode.
		if str, ok := v.(string); ok && json.Valid([]byte(str)) {
			return str, nil
		}
		out, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	switch v := v.(type) {
	case bool:
		if v {
			return "t", nil
		}
		return "f", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unexpected value %T in statement response", v)
	}
}
