package pdfscan

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ContentLines extracts the text shown by a page content stream. Text
// positioning operators that move to a new line (T*, ', ", Td/TD with a
// vertical offset, Tm, ET) end the current line. Empty lines are dropped.
func ContentLines(data []byte) []string {
	p := &contentParser{data: data}
	p.run()
	p.newline()

	return p.lines
}

type contentParser struct {
	data    []byte
	pos     int
	lines   []string
	current strings.Builder
	strs    []string
	nums    []float64
}

func (p *contentParser) run() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch {
		case isSpace(c):
			p.pos++
		case c == '%':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		case c == '(':
			p.strs = append(p.strs, decodeText(p.literal()))
		case c == '<' && p.peek(1) == '<', c == '>' && p.peek(1) == '>':
			p.pos += 2
		case c == '<':
			p.strs = append(p.strs, decodeText(p.hex()))
		case c == '[', c == ']', c == '{', c == '}':
			p.pos++
		case c == '/':
			p.pos++
			p.word()
		default:
			tok := p.word()
			if tok == "" {
				p.pos++

				continue
			}
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				p.nums = append(p.nums, f)

				continue
			}
			p.operator(tok)
		}
	}
}

func (p *contentParser) operator(op string) {
	switch op {
	case "Tj", "TJ":
		p.show()
	case "'", "\"":
		p.newline()
		p.show()
	case "T*", "ET", "Tm":
		p.newline()
	case "Td", "TD":
		if len(p.nums) >= 2 && p.nums[len(p.nums)-1] != 0 {
			p.newline()
		} else if p.current.Len() > 0 {
			p.current.WriteByte(' ')
		}
	case "ID":
		p.skipInlineImage()
	}
	p.strs = p.strs[:0]
	p.nums = p.nums[:0]
}

func (p *contentParser) show() {
	for _, s := range p.strs {
		p.current.WriteString(s)
	}
}

func (p *contentParser) newline() {
	if line := strings.Join(strings.Fields(p.current.String()), " "); line != "" {
		p.lines = append(p.lines, line)
	}
	p.current.Reset()
}

func (p *contentParser) peek(n int) byte {
	if p.pos+n < len(p.data) {
		return p.data[p.pos+n]
	}

	return 0
}

func (p *contentParser) word() string {
	start := p.pos
	for p.pos < len(p.data) && !isSpace(p.data[p.pos]) && !isDelimiter(p.data[p.pos]) {
		p.pos++
	}

	return string(p.data[start:p.pos])
}

func (p *contentParser) literal() []byte {
	p.pos++ // (
	var out []byte
	depth := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out
			}
		case '\\':
			if p.pos >= len(p.data) {
				return out
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if p.pos < len(p.data) && p.data[p.pos] == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
						v = v*8 + int(p.data[p.pos]-'0')
						p.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}

			continue
		}
		out = append(out, c)
	}

	return out
}

func (p *contentParser) hex() []byte {
	p.pos++ // <
	var digits []byte
	for p.pos < len(p.data) && p.data[p.pos] != '>' {
		if c := p.data[p.pos]; isHex(c) {
			digits = append(digits, c)
		}
		p.pos++
	}
	p.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, _ := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		out = append(out, byte(v))
	}

	return out
}

// skipInlineImage moves past the binary data of an inline image up to its EI
// operator.
func (p *contentParser) skipInlineImage() {
	for p.pos+2 < len(p.data) {
		if isSpace(p.data[p.pos]) && p.data[p.pos+1] == 'E' && p.data[p.pos+2] == 'I' &&
			(p.pos+3 == len(p.data) || isSpace(p.data[p.pos+3])) {
			p.pos += 3

			return
		}
		p.pos++
	}
	p.pos = len(p.data)
}

// decodeText converts a PDF string to UTF-8. UTF-16BE strings carry a byte
// order mark; other bytes are read as UTF-8 when valid and Latin-1 otherwise.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}

		return string(utf16.Decode(u))
	}
	if utf8.Valid(b) {
		return string(b)
	}

	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}

	return string(r)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
