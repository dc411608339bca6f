package agent

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/agentkit-go/agentkit/types"
)

// The textual function-call convention is a compatibility shim for
// providers without native structured calling. The micro-grammar:
//
//	call  := "function:" ws* name "(" args? ")"
//	name  := ident
//	args  := arg ("," ws* arg)*
//	arg   := ident ":" ws* value
//	value := quoted-string | bare-token
//
// Parsing is strict: a malformed call is a format error, never fuzzily
// repaired.

const funcallPrefix = "function:"

// FunctionCall is a parsed textual call.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// parseErrorf builds the uniform format error for the protocol.
func parseErrorf(pos int, format string, args ...any) *types.Error {
	return types.NewErrorf(types.ErrValidation, "malformed function call: "+format, args...).
		WithDetail("position", pos)
}

// DetectFunctionCall scans text for a line using the textual convention
// and parses it. Returns (nil, nil) when no line starts with the prefix;
// a present but malformed call is an error.
func DetectFunctionCall(text string) (*FunctionCall, error) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, funcallPrefix) {
			return ParseFunctionCall(trimmed)
		}
	}
	return nil, nil
}

// ParseFunctionCall parses one `function: name(arg: value, ...)` line.
func ParseFunctionCall(line string) (*FunctionCall, error) {
	p := &funcallParser{input: line}

	if !p.consume(funcallPrefix) {
		return nil, parseErrorf(p.pos, "expected %q prefix", funcallPrefix)
	}
	p.skipSpaces()

	name := p.ident()
	if name == "" {
		return nil, parseErrorf(p.pos, "expected function name")
	}
	if !p.consume("(") {
		return nil, parseErrorf(p.pos, "expected '(' after function name %q", name)
	}

	args := make(map[string]any)
	p.skipSpaces()
	if !p.consume(")") {
		for {
			key := p.ident()
			if key == "" {
				return nil, parseErrorf(p.pos, "expected argument name")
			}
			if !p.consume(":") {
				return nil, parseErrorf(p.pos, "expected ':' after argument %q", key)
			}
			p.skipSpaces()

			value, err := p.value()
			if err != nil {
				return nil, err
			}
			args[key] = coerceValue(value)

			p.skipSpaces()
			if p.consume(",") {
				p.skipSpaces()
				continue
			}
			if p.consume(")") {
				break
			}
			return nil, parseErrorf(p.pos, "expected ',' or ')' after argument %q", key)
		}
	}

	p.skipSpaces()
	if !p.eof() {
		return nil, parseErrorf(p.pos, "trailing input after ')'")
	}
	return &FunctionCall{Name: name, Args: args}, nil
}

type funcallParser struct {
	input string
	pos   int
}

func (p *funcallParser) eof() bool { return p.pos >= len(p.input) }

func (p *funcallParser) consume(s string) bool {
	if strings.HasPrefix(p.input[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *funcallParser) skipSpaces() {
	for !p.eof() && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *funcallParser) ident() string {
	start := p.pos
	for !p.eof() {
		c := rune(p.input[p.pos])
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

// value reads a quoted string or a bare token running to the next
// top-level ',' or ')'.
func (p *funcallParser) value() (string, error) {
	if p.eof() {
		return "", parseErrorf(p.pos, "expected value")
	}

	if q := p.input[p.pos]; q == '"' || q == '\'' {
		start := p.pos
		p.pos++
		var sb strings.Builder
		sb.WriteByte(q)
		for !p.eof() {
			c := p.input[p.pos]
			if c == '\\' && p.pos+1 < len(p.input) {
				sb.WriteByte(p.input[p.pos+1])
				p.pos += 2
				continue
			}
			p.pos++
			sb.WriteByte(c)
			if c == q {
				return sb.String(), nil
			}
		}
		return "", parseErrorf(start, "unterminated string")
	}

	start := p.pos
	for !p.eof() {
		c := p.input[p.pos]
		if c == ',' || c == ')' {
			break
		}
		p.pos++
	}
	token := strings.TrimSpace(p.input[start:p.pos])
	if token == "" {
		return "", parseErrorf(start, "empty value")
	}
	return token, nil
}

// coerceValue applies the protocol's value coercions: booleans, null,
// integers, floats, quoted strings, else the raw token.
func coerceValue(token string) any {
	switch token {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if len(token) >= 2 {
		if q := token[0]; (q == '"' || q == '\'') && token[len(token)-1] == q {
			return token[1 : len(token)-1]
		}
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}

// String renders the call back in protocol form, mainly for logs.
func (c *FunctionCall) String() string {
	parts := make([]string, 0, len(c.Args))
	for k, v := range c.Args {
		parts = append(parts, fmt.Sprintf("%s: %v", k, v))
	}
	return fmt.Sprintf("%s %s(%s)", funcallPrefix, c.Name, strings.Join(parts, ", "))
}
