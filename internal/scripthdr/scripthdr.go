// Package scripthdr parses the #JS resource directives at the top of a
// submitted script and expands the %x/%j path templates used in its
// stdout/stderr settings.
package scripthdr

import (
	"bufio"
	"strconv"
	"strings"
)

// Header is the parsed result of one or more "#JS key=value ..." lines.
// Zero values mean "not set"; callers apply their own defaults.
type Header struct {
	Cores     int
	MemMB     int
	TimeLimit string
	Stdout    string
	Stderr    string
	Name      string
	Workdir   string

	hasCores bool
	hasMemMB bool
}

// HasCores and HasMemMB report whether the header explicitly set the
// corresponding field, since zero is not a valid resource request and
// can't itself signal "unset".
func (h Header) HasCores() bool { return h.hasCores }
func (h Header) HasMemMB() bool { return h.hasMemMB }

// Parse reads directive lines from the start of a script: comment lines
// of the form "#JS key=value key=\"quoted value\" ...". Parsing stops at
// the first line that is neither blank nor a comment. Unknown keys are
// ignored. A value wrapped in one layer of matching single or double
// quotes has that layer stripped.
func Parse(src string) Header {
	var h Header

	scanner := bufio.NewScanner(strings.NewReader(src))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if !strings.HasPrefix(rest, "JS") {
			continue
		}
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "JS"))
		if rest == "" {
			continue
		}

		for _, pair := range splitPairs(rest) {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = unquote(strings.TrimSpace(value))

			switch key {
			case "cores":
				if n, err := strconv.Atoi(value); err == nil {
					h.Cores = n
					h.hasCores = true
				}
			case "mem_mb":
				if n, err := strconv.Atoi(value); err == nil {
					h.MemMB = n
					h.hasMemMB = true
				}
			case "time_limit":
				h.TimeLimit = value
			case "stdout":
				h.Stdout = value
			case "stderr":
				h.Stderr = value
			case "name":
				h.Name = value
			case "workdir":
				h.Workdir = value
			}
		}
	}

	return h
}

// splitPairs tokenizes "key=value key=\"quoted value\"" into individual
// key=value tokens, treating whitespace inside a matching pair of quotes
// as part of the value rather than a separator.
func splitPairs(s string) []string {
	var out []string
	var cur strings.Builder
	var quote byte

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

// unquote strips exactly one layer of surrounding matching quotes, if
// present. "a b" -> a b, 'a b' -> a b, unquoted -> unquoted.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ExpandTemplate replaces %x with name and %j with jobID; any other
// %-sequence is left literal.
func ExpandTemplate(template, name, jobID string) string {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] == '%' && i+1 < len(template) {
			switch template[i+1] {
			case 'x':
				b.WriteString(name)
				i++
				continue
			case 'j':
				b.WriteString(jobID)
				i++
				continue
			}
		}
		b.WriteByte(template[i])
	}
	return b.String()
}
