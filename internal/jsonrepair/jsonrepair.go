// Package jsonrepair cleans up JSON written by a language model: code
// fences, smart quotes, single-quoted strings and trailing commas.
package jsonrepair

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	openSingle    = regexp.MustCompile(`([\[{,:]\s*)'`)
	closeSingle   = regexp.MustCompile(`'(\s*[\]},:])`)

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
)

// StripFences removes a surrounding markdown code block.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Repair normalises quotes and drops trailing commas. Callers run it once
// and give up if the result is still not valid JSON.
func Repair(s string) string {
	s = smartQuotes.Replace(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	if gjson.Valid(s) {
		return s
	}
	s = openSingle.ReplaceAllString(s, `$1"`)
	s = closeSingle.ReplaceAllString(s, `"$1`)
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) > 1 {
		s = `"` + s[1:len(s)-1] + `"`
	}
	return s
}
