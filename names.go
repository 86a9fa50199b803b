package autotool

import (
	"strings"
	"unicode"
)

// splitWords breaks an identifier into lower-case words, handling snake_case,
// kebab-case, dotted paths and camelCase including acronym runs
// ("HTTPServer" -> [http server]).
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// slug renders s as lower snake case restricted to [a-z0-9_].
func slug(s string) string {
	return strings.Join(splitWords(s), "_")
}

// lastSegment returns the part of a qualified name after the final '.' or '/'.
func lastSegment(s string) string {
	if i := strings.LastIndexAny(s, "./"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// leadingVerb returns the first word of name, skipping prefixes that only
// mark calling style ("begin_create" -> create, "async_get" -> get).
func leadingVerb(words []string) (verb string, rest []string) {
	for i, w := range words {
		switch w {
		case "begin", "async", "try", "do":
			if i+1 < len(words) {
				continue
			}
		}
		return w, words[i+1:]
	}
	return "", nil
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func inSet(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}

func anyInSet(set map[string]struct{}, words []string) bool {
	for _, w := range words {
		if inSet(set, w) {
			return true
		}
	}
	return false
}

// singular is a best-effort English singularization for resource nouns.
func singular(w string) string {
	lw := strings.ToLower(w)
	switch {
	case strings.HasSuffix(lw, "ies") && len(w) > 3:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(lw, "sses"), strings.HasSuffix(lw, "xes"), strings.HasSuffix(lw, "ches"), strings.HasSuffix(lw, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(lw, "ss"), strings.HasSuffix(lw, "us"), strings.HasSuffix(lw, "is"):
		return w
	case strings.HasSuffix(lw, "s") && len(w) > 1:
		return w[:len(w)-1]
	}
	return w
}

// camel joins lower-case words into CamelCase.
func camel(words []string) string {
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
