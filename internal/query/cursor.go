package query

import "strings"

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// identAt returns the identifier touching off, including one that ends
// right at the cursor
func identAt(content []byte, off int) (string, int, int) {
	off = min(max(off, 0), len(content))
	start, end := off, off
	for start > 0 && isIdentByte(content[start-1]) {
		start--
	}
	for end < len(content) && isIdentByte(content[end]) {
		end++
	}
	if start == end || content[start] >= '0' && content[start] <= '9' {
		return "", off, off
	}
	return string(content[start:end]), start, end
}

// prefixAt returns the partial identifier typed before off
func prefixAt(content []byte, off int) (string, int) {
	off = min(max(off, 0), len(content))
	start := off
	for start > 0 && isIdentByte(content[start-1]) {
		start--
	}
	return string(content[start:off]), start
}

// receiverChain returns the member access chain ending before start, outer
// first: for "light.color.r" with start at "r" it is [light color]. ok is
// false when start does not follow a '.'.
func receiverChain(content []byte, start int) ([]string, bool) {
	var chain []string
	i := skipSpaceBack(content, start)
	for i > 0 && content[i-1] == '.' {
		i = skipSpaceBack(content, i-1)
		// Skip one or more index expressions: lights[i].color
		for i > 0 && content[i-1] == ']' {
			i = matchBack(content, i-1, '[', ']')
			if i < 0 {
				return nil, false
			}
			i = skipSpaceBack(content, i)
		}
		end := i
		for i > 0 && isIdentByte(content[i-1]) {
			i--
		}
		if i == end {
			return nil, false
		}
		chain = append([]string{string(content[i:end])}, chain...)
		i = skipSpaceBack(content, i)
	}
	return chain, len(chain) > 0
}

func skipSpaceBack(content []byte, i int) int {
	for i > 0 && (content[i-1] == ' ' || content[i-1] == '\t' || content[i-1] == '\n' || content[i-1] == '\r') {
		i--
	}
	return i
}

// matchBack returns the index of the open bracket matching the close at i
func matchBack(content []byte, i int, open, close byte) int {
	depth := 0
	for ; i >= 0; i-- {
		switch content[i] {
		case close:
			depth++
		case open:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// callAt finds the innermost unclosed call around off. It returns the
// callee name and how many top-level commas precede off.
func callAt(content []byte, off int) (string, int, bool) {
	off = min(max(off, 0), len(content))
	depth, commas := 0, 0
	for i := off - 1; i >= 0; i-- {
		switch content[i] {
		case ')', ']':
			depth++
		case '[':
			depth--
		case '(':
			if depth > 0 {
				depth--
				continue
			}
			j := skipSpaceBack(content, i)
			end := j
			for j > 0 && isIdentByte(content[j-1]) {
				j--
			}
			if j == end {
				return "", 0, false
			}
			return string(content[j:end]), commas, true
		case ',':
			if depth == 0 {
				commas++
			}
		case ';', '{', '}':
			return "", 0, false
		}
	}
	return "", 0, false
}

// baseType reduces a declared type to the name members are looked up by:
// "in Light" -> Light, "Light[4]" -> Light, "StructuredBuffer<Light>" -> Light,
// "array<Light, 4>" -> Light
func baseType(t string) string {
	t = strings.TrimSpace(t)
	if open := strings.IndexByte(t, '<'); open >= 0 {
		if close := strings.LastIndexByte(t, '>'); close > open {
			inner := t[open+1 : close]
			if comma := strings.IndexByte(inner, ','); comma >= 0 {
				inner = inner[:comma]
			}
			t = inner
		}
	}
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	fields := strings.Fields(t)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[len(fields)-1], "*")
}
