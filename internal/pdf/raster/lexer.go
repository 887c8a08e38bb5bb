package raster

import (
	"bytes"
	"fmt"
	"strconv"
)

// tokenType is the lexical class of a content stream token
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenNumber
	tokenString
	tokenName
	tokenKeyword
	tokenArrayStart
	tokenArrayEnd
	tokenDictStart
	tokenDictEnd
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenNumber:
		return "Number"
	case tokenString:
		return "String"
	case tokenName:
		return "Name"
	case tokenKeyword:
		return "Keyword"
	case tokenArrayStart:
		return "ArrayStart"
	case tokenArrayEnd:
		return "ArrayEnd"
	case tokenDictStart:
		return "DictStart"
	case tokenDictEnd:
		return "DictEnd"
	default:
		return "Unknown"
	}
}

// token is one lexical element of a content stream
type token struct {
	Type  tokenType
	Value string
	Num   float64
	Pos   int
}

// lexer tokenizes a decoded page or form content stream
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer {
	return &lexer{data: data}
}

func isWhitespace(ch byte) bool {
	switch ch {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(ch byte) bool {
	return !isWhitespace(ch) && !isDelimiter(ch)
}

func (l *lexer) hasNext() bool {
	return l.pos < len(l.data)
}

func (l *lexer) current() byte {
	return l.data[l.pos]
}

func (l *lexer) peek() byte {
	if l.pos+1 < len(l.data) {
		return l.data[l.pos+1]
	}
	return 0
}

// skipWhitespace skips whitespace and comments
func (l *lexer) skipWhitespace() {
	for l.hasNext() {
		ch := l.current()
		switch {
		case isWhitespace(ch):
			l.pos++
		case ch == '%':
			for l.hasNext() && l.current() != '\n' && l.current() != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

// next returns the next token from the stream
func (l *lexer) next() (token, error) {
	l.skipWhitespace()
	if !l.hasNext() {
		return token{Type: tokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	switch ch := l.current(); ch {
	case '(':
		return l.readLiteralString()
	case '<':
		if l.peek() == '<' {
			l.pos += 2
			return token{Type: tokenDictStart, Value: "<<", Pos: start}, nil
		}
		return l.readHexString()
	case '>':
		if l.peek() == '>' {
			l.pos += 2
			return token{Type: tokenDictEnd, Value: ">>", Pos: start}, nil
		}
		l.pos++
		return token{}, fmt.Errorf("unexpected '>' at offset %d", start)
	case '[':
		l.pos++
		return token{Type: tokenArrayStart, Value: "[", Pos: start}, nil
	case ']':
		l.pos++
		return token{Type: tokenArrayEnd, Value: "]", Pos: start}, nil
	case '{', '}':
		// PostScript calculator braces only occur in type 4 functions.
		l.pos++
		return token{Type: tokenKeyword, Value: string(ch), Pos: start}, nil
	case ')':
		l.pos++
		return token{}, fmt.Errorf("unbalanced ')' at offset %d", start)
	case '/':
		return l.readName(), nil
	default:
		if (ch >= '0' && ch <= '9') || ch == '+' || ch == '-' || ch == '.' {
			return l.readNumber(), nil
		}
		return l.readKeyword(), nil
	}
}

func (l *lexer) readLiteralString() (token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.pos++ // opening parenthesis
	depth := 1

	for l.hasNext() {
		ch := l.current()
		switch ch {
		case '(':
			depth++
			buf.WriteByte(ch)
		case ')':
			depth--
			if depth == 0 {
				l.pos++
				return token{Type: tokenString, Value: buf.String(), Pos: start}, nil
			}
			buf.WriteByte(ch)
		case '\\':
			l.pos++
			if !l.hasNext() {
				break
			}
			l.readEscape(&buf)
		default:
			buf.WriteByte(ch)
		}
		l.pos++
	}

	return token{}, fmt.Errorf("unterminated string at offset %d", start)
}

func (l *lexer) readEscape(buf *bytes.Buffer) {
	switch ch := l.current(); ch {
	case 'n':
		buf.WriteByte('\n')
	case 'r':
		buf.WriteByte('\r')
	case 't':
		buf.WriteByte('\t')
	case 'b':
		buf.WriteByte('\b')
	case 'f':
		buf.WriteByte('\f')
	case '\r':
		// line continuation
		if l.peek() == '\n' {
			l.pos++
		}
	case '\n':
	default:
		if ch >= '0' && ch <= '7' {
			val := int(ch - '0')
			for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
				l.pos++
				val = val*8 + int(l.current()-'0')
			}
			buf.WriteByte(byte(val))
			return
		}
		buf.WriteByte(ch)
	}
}

func (l *lexer) readHexString() (token, error) {
	start := l.pos
	var digits []byte

	l.pos++ // opening angle bracket
	for l.hasNext() && l.current() != '>' {
		ch := l.current()
		if !isWhitespace(ch) {
			if _, ok := hexValue(ch); !ok {
				return token{}, fmt.Errorf("invalid hex digit %q at offset %d", ch, l.pos)
			}
			digits = append(digits, ch)
		}
		l.pos++
	}
	if !l.hasNext() {
		return token{}, fmt.Errorf("unterminated hex string at offset %d", start)
	}
	l.pos++ // closing angle bracket

	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, _ := hexValue(digits[2*i])
		lo, _ := hexValue(digits[2*i+1])
		out[i] = hi<<4 | lo
	}

	return token{Type: tokenString, Value: string(out), Pos: start}, nil
}

func (l *lexer) readName() token {
	start := l.pos
	var buf bytes.Buffer

	l.pos++ // solidus
	for l.hasNext() && isRegular(l.current()) {
		ch := l.current()
		if ch == '#' && l.pos+2 < len(l.data) {
			hi, ok1 := hexValue(l.data[l.pos+1])
			lo, ok2 := hexValue(l.data[l.pos+2])
			if ok1 && ok2 {
				buf.WriteByte(hi<<4 | lo)
				l.pos += 3
				continue
			}
		}
		buf.WriteByte(ch)
		l.pos++
	}

	return token{Type: tokenName, Value: buf.String(), Pos: start}
}

func (l *lexer) readNumber() token {
	start := l.pos
	for l.hasNext() {
		ch := l.current()
		if (ch >= '0' && ch <= '9') || ch == '+' || ch == '-' || ch == '.' {
			l.pos++
			continue
		}
		break
	}

	text := string(l.data[start:l.pos])
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// Malformed numbers such as "--5" or "1.2.3" behave like keywords and
		// are discarded by the interpreter.
		return token{Type: tokenKeyword, Value: text, Pos: start}
	}
	return token{Type: tokenNumber, Value: text, Num: num, Pos: start}
}

func (l *lexer) readKeyword() token {
	start := l.pos
	for l.hasNext() && isRegular(l.current()) {
		l.pos++
	}
	return token{Type: tokenKeyword, Value: string(l.data[start:l.pos]), Pos: start}
}

// skipInlineImage moves past the binary data of an inline image. It must be
// called right after the ID operator has been read and returns once the
// terminating EI has been consumed.
func (l *lexer) skipInlineImage() error {
	start := l.pos
	if l.hasNext() && isWhitespace(l.current()) {
		l.pos++
	}

	for i := l.pos; i+1 < len(l.data); i++ {
		if l.data[i] != 'E' || l.data[i+1] != 'I' {
			continue
		}
		before := i == 0 || isWhitespace(l.data[i-1])
		after := i+2 == len(l.data) || isWhitespace(l.data[i+2]) || isDelimiter(l.data[i+2])
		if before && after {
			l.pos = i + 2
			return nil
		}
	}

	l.pos = len(l.data)
	return fmt.Errorf("inline image starting at offset %d has no EI", start)
}

func hexValue(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	}
	return 0, false
}
