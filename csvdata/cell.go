package csvdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

// Cell parsing and printing for the CSV interchange format. An empty
// cell means SQL NULL for every type except text, where it means the
// empty string; callers handle that before reaching these functions.

var trueForms = map[string]bool{"1": true, "y": true, "yes": true, "on": true, "t": true, "true": true}
var falseForms = map[string]bool{"0": true, "n": true, "no": true, "off": true, "f": true, "false": true}

// ParseBoolCell parses a boolean CSV cell. The accepted spellings match
// the interchange format: 1/y/yes/on/t/true and 0/n/no/off/f/false,
// case-insensitive.
func ParseBoolCell(cell string) (bool, error) {
	lower := strings.ToLower(cell)
	if trueForms[lower] {
		return true, nil
	}
	if falseForms[lower] {
		return false, nil
	}
	return false, fmt.Errorf("cannot parse boolean %q", cell)
}

// CellToJSON converts one CSV cell into the JSON value used by the
// JSON-Lines rendering of the given portable type. s resolves NamedType
// references.
func CellToJSON(s *schema.Schema, dt schema.DataType, cell string) (any, error) {
	if nt, ok := dt.(*schema.NamedType); ok {
		def, err := s.ResolveNamed(nt.Name)
		if err != nil {
			return nil, err
		}
		return CellToJSON(s, def.DataType, cell)
	}
	if schema.SerializesAsJSONForCSV(dt) {
		var v any
		if err := json.Unmarshal([]byte(cell), &v); err != nil {
			return nil, fmt.Errorf("cannot parse %q as JSON: %w", cell, err)
		}
		return v, nil
	}
	switch dt.(type) {
	case *schema.BoolType:
		return ParseBoolCell(cell)
	case *schema.Int16Type:
		v, err := strconv.ParseInt(cell, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as int16: %w", cell, err)
		}
		return v, nil
	case *schema.Int32Type:
		v, err := strconv.ParseInt(cell, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as int32: %w", cell, err)
		}
		return v, nil
	case *schema.Int64Type:
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as int64: %w", cell, err)
		}
		return v, nil
	case *schema.Float32Type:
		v, err := strconv.ParseFloat(cell, 32)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as float32: %w", cell, err)
		}
		return v, nil
	case *schema.Float64Type:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as float64: %w", cell, err)
		}
		return v, nil
	case *schema.UUIDType:
		if _, err := uuid.Parse(cell); err != nil {
			return nil, fmt.Errorf("cannot parse %q as UUID: %w", cell, err)
		}
		return cell, nil
	case *schema.OneOfType:
		// Enum membership is checked by the destination; the wire value
		// is just text.
		return cell, nil
	default:
		// Dates, timestamps, decimals and text travel as their string
		// forms; backends parse them natively.
		return cell, nil
	}
}

// JSONToCell converts one JSON value into its CSV cell rendering for the
// given portable type. A JSON null becomes the empty cell.
func JSONToCell(s *schema.Schema, dt schema.DataType, v any) (string, error) {
	if nt, ok := dt.(*schema.NamedType); ok {
		def, err := s.ResolveNamed(nt.Name)
		if err != nil {
			return "", err
		}
		return JSONToCell(s, def.DataType, v)
	}
	if v == nil {
		return "", nil
	}
	if schema.SerializesAsJSONForCSV(dt) {
		out, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	switch v := v.(type) {
	case bool:
		// Booleans use the interchange convention.
		if v {
			return "t", nil
		}
		return "f", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot serialize %v as %T", v, dt)
	}
}
