package extract

import (
	"strings"
)

// CleanJSON recovers a JSON payload from a model response. Models wrap
// output in markdown fences, add // comments, and leave trailing commas;
// all of that is stripped before unmarshalling.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripFences(s)
	s = clipToPayload(s)
	s = stripComments(s)
	s = stripTrailingCommas(s)
	return strings.TrimSpace(s)
}

// stripFences removes a surrounding ```json ... ``` (or bare ```) block.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line.
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "JSON" || first == "" {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// clipToPayload trims prose before the first bracket and after the last
// matching one.
func clipToPayload(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var close byte
	if s[start] == '[' {
		close = ']'
	} else {
		close = '}'
	}
	end := strings.LastIndexByte(s, close)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// stripComments removes // line comments, leaving string contents intact.
func stripComments(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			sb.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				sb.WriteByte('\n')
			}
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// stripTrailingCommas removes commas directly before a closing bracket.
func stripTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			sb.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
