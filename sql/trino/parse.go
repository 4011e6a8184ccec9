package trino

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseCreateTable parses a single Trino CREATE TABLE statement, the
// format accepted by trino-sql: schema locators.
func ParseCreateTable(sql string) (*CreateTable, error) {
	p := &parser{src: sql}
	if err := p.keyword("CREATE"); err != nil {
		return nil, err
	}
	ct := &CreateTable{}
	if p.tryKeyword("OR") {
		if err := p.keyword("REPLACE"); err != nil {
			return nil, err
		}
		ct.OrReplace = true
	}
	if err := p.keyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.tableName()
	if err != nil {
		return nil, err
	}
	ct.Name = name
	if err := p.expect('('); err != nil {
		return nil, err
	}
	for {
		colName, err := p.ident()
		if err != nil {
			return nil, err
		}
		ty, err := p.dataType()
		if err != nil {
			return nil, err
		}
		col := Column{Name: colName, Type: ty}
		if p.tryKeyword("NOT") {
			if err := p.keyword("NULL"); err != nil {
				return nil, err
			}
			col.NotNull = true
		}
		ct.Columns = append(ct.Columns, col)
		if p.tryExpect(',') {
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		break
	}
	if p.tryKeyword("WITH") {
		with, err := p.withProperties()
		if err != nil {
			return nil, err
		}
		ct.With = with
	}
	p.skipSpace()
	p.tryExpect(';')
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input")
	}
	return ct, nil
}

// ParseDataType parses a Trino type expression, as returned by the
// statement API's column metadata.
func ParseDataType(s string) (DataType, error) {
	p := &parser{src: s}
	ty, err := p.dataType()
	if err != nil {
		return DataType{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return DataType{}, p.errorf("unexpected trailing input in type %q", s)
	}
	return ty, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("trino: parse error at byte %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		if c == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '-' {
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *parser) keyword(kw string) error {
	if !p.tryKeyword(kw) {
		return p.errorf("expected %s", kw)
	}
	return nil
}

func (p *parser) tryKeyword(kw string) bool {
	p.skipSpace()
	end := p.pos + len(kw)
	if end > len(p.src) || !strings.EqualFold(p.src[p.pos:end], kw) {
		return false
	}
	if end < len(p.src) && isIdentChar(rune(p.src[end])) {
		return false
	}
	p.pos = end
	return true
}

func (p *parser) expect(c byte) error {
	if !p.tryExpect(c) {
		return p.errorf("expected %q", string(c))
	}
	return nil
}

func (p *parser) tryExpect(c byte) bool {
	p.skipSpace()
	if p.eof() || p.src[p.pos] != c {
		return false
	}
	p.pos++
	return true
}

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// ident parses a quoted or unquoted identifier. Trino folds unquoted
// identifiers to lower case.
func (p *parser) ident() (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", p.errorf("expected identifier")
	}
	if p.src[p.pos] == '"' {
		p.pos++
		var b strings.Builder
		for {
			if p.eof() {
				return "", p.errorf("unterminated quoted identifier")
			}
			c := p.src[p.pos]
			if c == '"' {
				if p.pos+1 < len(p.src) && p.src[p.pos+1] == '"' {
					b.WriteByte('"')
					p.pos += 2
					continue
				}
				p.pos++
				return b.String(), nil
			}
			b.WriteByte(c)
			p.pos++
		}
	}
	start := p.pos
	for !p.eof() && isIdentChar(rune(p.src[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected identifier")
	}
	return strings.ToLower(p.src[start:p.pos]), nil
}

func (p *parser) tableName() (TableName, error) {
	var parts []string
	for {
		part, err := p.ident()
		if err != nil {
			return TableName{}, err
		}
		parts = append(parts, part)
		if !p.tryExpect('.') {
			break
		}
	}
	if len(parts) != 3 {
		return TableName{}, p.errorf("expected catalog.schema.table, got %d parts", len(parts))
	}
	return TableName{Catalog: parts[0], Schema: parts[1], Table: parts[2]}, nil
}

func (p *parser) number() (int, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, p.errorf("expected number")
	}
	return strconv.Atoi(p.src[start:p.pos])
}

func (p *parser) dataType() (DataType, error) {
	switch {
	case p.tryKeyword("BOOLEAN"):
		return DataType{Kind: Boolean}, nil
	case p.tryKeyword("TINYINT"):
		return DataType{Kind: TinyInt}, nil
	case p.tryKeyword("SMALLINT"):
		return DataType{Kind: SmallInt}, nil
	case p.tryKeyword("INTEGER"), p.tryKeyword("INT"):
		return DataType{Kind: Int}, nil
	case p.tryKeyword("BIGINT"):
		return DataType{Kind: BigInt}, nil
	case p.tryKeyword("REAL"):
		return DataType{Kind: Real}, nil
	case p.tryKeyword("DOUBLE"):
		return DataType{Kind: Double}, nil
	case p.tryKeyword("DECIMAL"):
		dt := DataType{Kind: Decimal}
		if p.tryExpect('(') {
			var err error
			if dt.Precision, err = p.number(); err != nil {
				return DataType{}, err
			}
			if p.tryExpect(',') {
				if dt.Scale, err = p.number(); err != nil {
					return DataType{}, err
				}
			}
			if err := p.expect(')'); err != nil {
				return DataType{}, err
			}
		}
		return dt, nil
	case p.tryKeyword("VARCHAR"):
		dt := DataType{Kind: Varchar}
		if p.tryExpect('(') {
			var err error
			if dt.Length, err = p.number(); err != nil {
				return DataType{}, err
			}
			if err := p.expect(')'); err != nil {
				return DataType{}, err
			}
		}
		return dt, nil
	case p.tryKeyword("VARBINARY"):
		return DataType{Kind: Varbinary}, nil
	case p.tryKeyword("JSON"):
		return DataType{Kind: Json}, nil
	case p.tryKeyword("DATE"):
		return DataType{Kind: Date}, nil
	case p.tryKeyword("TIMESTAMP"):
		return p.timeType(Timestamp, TimestampWithTimeZone)
	case p.tryKeyword("TIME"):
		return p.timeType(Time, Time)
	case p.tryKeyword("ARRAY"):
		if err := p.expect('('); err != nil {
			return DataType{}, err
		}
		elem, err := p.dataType()
		if err != nil {
			return DataType{}, err
		}
		if err := p.expect(')'); err != nil {
			return DataType{}, err
		}
		return ArrayOf(elem), nil
	case p.tryKeyword("ROW"):
		if err := p.expect('('); err != nil {
			return DataType{}, err
		}
		var fields []Field
		for {
			field, err := p.rowField()
			if err != nil {
				return DataType{}, err
			}
			fields = append(fields, field)
			if p.tryExpect(',') {
				continue
			}
			if err := p.expect(')'); err != nil {
				return DataType{}, err
			}
			break
		}
		return DataType{Kind: Row, Fields: fields}, nil
	case p.tryKeyword("UUID"):
		return DataType{Kind: Uuid}, nil
	case p.tryKeyword("SPHERICALGEOGRAPHY"):
		return DataType{Kind: SphericalGeography}, nil
	default:
		return DataType{}, p.errorf("expected data type")
	}
}

// timeType parses the optional precision and WITH TIME ZONE suffix of
// TIME and TIMESTAMP.
func (p *parser) timeType(plain, withTZ Kind) (DataType, error) {
	dt := DataType{Kind: plain, Precision: DefaultTimePrecision}
	if p.tryExpect('(') {
		var err error
		if dt.Precision, err = p.number(); err != nil {
			return DataType{}, err
		}
		if err := p.expect(')'); err != nil {
			return DataType{}, err
		}
	}
	if p.tryKeyword("WITH") {
		if err := p.keyword("TIME"); err != nil {
			return DataType{}, err
		}
		if err := p.keyword("ZONE"); err != nil {
			return DataType{}, err
		}
		dt.Kind = withTZ
	}
	return dt, nil
}

// rowField parses a ROW field: a type, optionally preceded by a name.
func (p *parser) rowField() (Field, error) {
	save := p.pos
	name, err := p.ident()
	if err == nil {
		ty, tyErr := p.dataType()
		if tyErr == nil {
			return Field{Name: name, Type: ty}, nil
		}
	}
	// Anonymous field: the token we read was the type itself.
	p.pos = save
	ty, err := p.dataType()
	if err != nil {
		return Field{}, err
	}
	return Field{Type: ty}, nil
}

func (p *parser) withProperties() (map[string]string, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	props := map[string]string{}
	for {
		key, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		val, err := p.stringLiteral()
		if err != nil {
			return nil, err
		}
		props[key] = val
		if p.tryExpect(',') {
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return props, nil
	}
}

func (p *parser) stringLiteral() (string, error) {
	p.skipSpace()
	if p.eof() || p.src[p.pos] != '\'' {
		return "", p.errorf("expected string literal")
	}
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string literal")
		}
		c := p.src[p.pos]
		if c == '\'' {
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '\'' {
				b.WriteByte('\'')
				p.pos += 2
				continue
			}
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
}
