package playbook

import (
	"strings"
	"unicode"
)

type section struct {
	heading string
	content string
}

// splitSections cuts markdown on "##" headings. Text before the first
// heading becomes its own section when non-empty.
func splitSections(markdown string) []section {
	var (
		out     []section
		heading string
		body    strings.Builder
	)

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" || heading != "" {
			content := text
			if heading != "" {
				content = strings.TrimSpace("## " + heading + "\n" + text)
			}
			out = append(out, section{heading: heading, content: content})
		}
		body.Reset()
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return out
}

// matchQuery turns free text into an FTS5 query: quoted tokens joined
// with OR, so punctuation in customer text cannot break the syntax.
func matchQuery(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]bool{}
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, `"`+f+`"`)
	}
	return strings.Join(tokens, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "my": true, "is": true, "it": true, "to": true,
	"of": true, "on": true, "in": true, "for": true, "me": true, "can": true,
	"you": true, "with": true, "an": true, "be": true, "do": true, "what": true,
	"this": true, "that": true, "was": true, "are": true, "at": true,
}
