package postgres

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseCreateTable parses a single PostgreSQL CREATE TABLE statement,
// the format accepted by postgres-sql: schema locators. Constraints
// other than NOT NULL and PRIMARY KEY are not supported; this is a
// schema interchange format, not a general SQL parser.
func ParseCreateTable(sql string) (*CreateTable, error) {
	p := &sqlParser{src: sql}
	p.skipSpace()
	if err := p.keyword("CREATE"); err != nil {
		return nil, err
	}
	ct := &CreateTable{}
	if p.tryKeyword("TEMPORARY") || p.tryKeyword("TEMP") {
		ct.Temporary = true
	}
	if err := p.keyword("TABLE"); err != nil {
		return nil, err
	}
	if p.tryKeyword("IF") {
		if err := p.keyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.keyword("EXISTS"); err != nil {
			return nil, err
		}
		ct.IfNotExists = true
	}
	name, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	ct.Name = name
	if err := p.expect('('); err != nil {
		return nil, err
	}
	for {
		col, err := p.column()
		if err != nil {
			return nil, err
		}
		ct.Columns = append(ct.Columns, col)
		p.skipSpace()
		if p.tryExpect(',') {
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		break
	}
	p.skipSpace()
	p.tryExpect(';')
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input")
	}
	return ct, nil
}

type sqlParser struct {
	src string
	pos int
}

func (p *sqlParser) errorf(format string, args ...any) error {
	return fmt.Errorf("postgres: parse error at byte %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *sqlParser) eof() bool { return p.pos >= len(p.src) }

func (p *sqlParser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		// "--" line comments.
		if c == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '-' {
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *sqlParser) keyword(kw string) error {
	if !p.tryKeyword(kw) {
		return p.errorf("expected %s", kw)
	}
	return nil
}

func (p *sqlParser) tryKeyword(kw string) bool {
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

func (p *sqlParser) peekKeyword(kw string) bool {
	save := p.pos
	ok := p.tryKeyword(kw)
	p.pos = save
	return ok
}

func (p *sqlParser) expect(c byte) error {
	if !p.tryExpect(c) {
		return p.errorf("expected %q", string(c))
	}
	return nil
}

func (p *sqlParser) tryExpect(c byte) bool {
	p.skipSpace()
	if p.eof() || p.src[p.pos] != c {
		return false
	}
	p.pos++
	return true
}

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

// ident parses a quoted or unquoted identifier. Unquoted identifiers
// are case-folded to lower case the way PostgreSQL folds them; quoted
// identifiers preserve case exactly.
func (p *sqlParser) ident() (string, error) {
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

func (p *sqlParser) qualifiedName() (TableName, error) {
	first, err := p.ident()
	if err != nil {
		return TableName{}, err
	}
	if p.tryExpect('.') {
		second, err := p.ident()
		if err != nil {
			return TableName{}, err
		}
		return TableName{Schema: first, Table: second}, nil
	}
	return TableName{Table: first}, nil
}

func (p *sqlParser) column() (Column, error) {
	name, err := p.ident()
	if err != nil {
		return Column{}, err
	}
	rawType, err := p.typeText()
	if err != nil {
		return Column{}, err
	}
	ty, err := ParseType(rawType)
	if err != nil {
		return Column{}, err
	}
	col := Column{Name: name, IsNullable: true, Type: ty}
	for {
		switch {
		case p.tryKeyword("NOT"):
			if err := p.keyword("NULL"); err != nil {
				return Column{}, err
			}
			col.IsNullable = false
		case p.tryKeyword("NULL"):
			col.IsNullable = true
		case p.tryKeyword("PRIMARY"):
			if err := p.keyword("KEY"); err != nil {
				return Column{}, err
			}
			col.IsNullable = false
		default:
			return col, nil
		}
	}
}

// typeText captures the raw type expression: everything up to a
// depth-zero comma, closing paren, or column option keyword.
func (p *sqlParser) typeText() (string, error) {
	p.skipSpace()
	start := p.pos
	depth := 0
	for !p.eof() {
		if depth == 0 && (p.peekKeyword("NOT") || p.peekKeyword("NULL") || p.peekKeyword("PRIMARY")) {
			break
		}
		c := p.src[p.pos]
		if depth == 0 && (c == ',' || c == ';') {
			break
		}
		switch c {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				goto done
			}
			depth--
		}
		p.pos++
	}
done:
	text := strings.TrimSpace(p.src[start:p.pos])
	if text == "" {
		return "", p.errorf("expected column type")
	}
	return text, nil
}
