package jsonx

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EvalLiteral evaluates a Python-style literal expression into Go values:
// map[string]any, []any, string, float64/int64, bool and nil.
// Only literals are accepted; names other than True/False/None/null/true/false are rejected.
func EvalLiteral(s string) (any, error) {
	p := &literalParser{src: []rune(s)}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected trailing input at %d", p.pos)
	}
	return v, nil
}

type literalParser struct {
	src []rune
	pos int
}

func (p *literalParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if r == '#' {
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return
		}
		p.pos++
	}
}

func (p *literalParser) value() (any, error) {
	switch r := p.peek(); {
	case r == '{':
		return p.dict()
	case r == '[':
		return p.sequence('[', ']')
	case r == '(':
		return p.sequence('(', ')')
	case r == '\'' || r == '"':
		return p.str()
	case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
		return p.number()
	case unicode.IsLetter(r):
		return p.name()
	case r == 0:
		return nil, fmt.Errorf("unexpected end of input")
	default:
		return nil, fmt.Errorf("unexpected %q at %d", r, p.pos)
	}
}

func (p *literalParser) dict() (any, error) {
	p.pos++
	out := map[string]any{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, fmt.Errorf("expected ':' at %d", p.pos)
		}
		p.pos++
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(k)] = v
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, fmt.Errorf("expected ',' or '}' at %d", p.pos)
		}
	}
}

func (p *literalParser) sequence(open, closer rune) (any, error) {
	p.pos++
	out := []any{}
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return nil, fmt.Errorf("expected ',' or %q at %d", closer, p.pos)
		}
	}
}

func (p *literalParser) str() (any, error) {
	quote := p.src[p.pos]
	triple := p.pos+2 < len(p.src) && p.src[p.pos+1] == quote && p.src[p.pos+2] == quote
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	var b strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		switch {
		case r == '\\' && p.pos+1 < len(p.src):
			p.pos++
			b.WriteRune(unescape(p.src[p.pos]))
			p.pos++
		case r == quote && !triple:
			p.pos++
			return b.String(), nil
		case r == quote && triple && p.pos+2 < len(p.src) && p.src[p.pos+1] == quote && p.src[p.pos+2] == quote:
			p.pos += 3
			return b.String(), nil
		case r == '\n' && !triple:
			return nil, fmt.Errorf("unterminated string at %d", p.pos)
		default:
			b.WriteRune(r)
			p.pos++
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if unicode.IsDigit(r) || strings.ContainsRune("+-.eE_", r) {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(string(p.src[start:p.pos]), "_", "")
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return f, nil
}

func (p *literalParser) name() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	switch word := string(p.src[start:p.pos]); word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("name %q is not a literal", word)
	}
}
