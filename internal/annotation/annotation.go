// Package annotation extracts the out-of-band markers the narrator embeds in
// its replies and produces the clean text shown to the user.
//
// Three markers are recognised, each written inline as [TAG]payload[/TAG]:
//
//	[THOUGHT_DEPTH]7[/THOUGHT_DEPTH]
//	[QUOTE]{"text":"...","author":"..."}[/QUOTE]
//	[TEMPERAMENT_RESULT]{"main":"mirror","sub":"abyss"}[/TEMPERAMENT_RESULT]
//
// Extraction is best-effort. A missing or malformed marker never fails a
// parse; it is reported as absent and still removed from the display text.
package annotation

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Tag names as they appear on the wire.
const (
	TagThoughtDepth      = "THOUGHT_DEPTH"
	TagQuote             = "QUOTE"
	TagTemperamentResult = "TEMPERAMENT_RESULT"
)

// DefaultThoughtDepth is reported when a reply carries no depth marker.
const DefaultThoughtDepth = 3

var (
	thoughtDepthPattern = regexp.MustCompile(`\[THOUGHT_DEPTH\](\d+)\[/THOUGHT_DEPTH\]`)
	quotePattern        = regexp.MustCompile(`(?s)\[QUOTE\](.*?)\[/QUOTE\]`)
	temperamentPattern  = regexp.MustCompile(`(?s)\[TEMPERAMENT_RESULT\](.*?)\[/TEMPERAMENT_RESULT\]`)

	// blockPatterns match whole markers regardless of payload validity.
	blockPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)\[THOUGHT_DEPTH\].*?\[/THOUGHT_DEPTH\]`),
		quotePattern,
		temperamentPattern,
	}
	// strayTagPattern catches unbalanced opening or closing tags.
	strayTagPattern = regexp.MustCompile(`\[/?(?:THOUGHT_DEPTH|QUOTE|TEMPERAMENT_RESULT)\]`)
)

// Quote is a quotation surfaced by the narrator.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// TemperamentResult is the onboarding classification emitted by the narrator.
// Values are raw strings; callers validate them against known temperaments.
type TemperamentResult struct {
	Main string `json:"main"`
	Sub  string `json:"sub"`
}

// Annotation is everything derived from a single raw reply.
type Annotation struct {
	ThoughtDepth int
	Quote        Result[Quote]
	Temperament  Result[TemperamentResult]
	DisplayText  string
}

// Parse extracts all markers from raw and returns the cleaned display text.
func Parse(raw string) Annotation {
	return Annotation{
		ThoughtDepth: ThoughtDepth(raw),
		Quote:        ParseQuote(raw),
		Temperament:  ParseTemperamentResult(raw),
		DisplayText:  Clean(raw),
	}
}

// ThoughtDepth returns the first depth marker's value, or DefaultThoughtDepth.
func ThoughtDepth(raw string) int {
	m := thoughtDepthPattern.FindStringSubmatch(raw)
	if m == nil {
		return DefaultThoughtDepth
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultThoughtDepth
	}
	return n
}

// ParseQuote decodes the first QUOTE marker. A quote without text is absent.
func ParseQuote(raw string) Result[Quote] {
	var q Quote
	if !decodeFirst(quotePattern, raw, &q) {
		return Absent[Quote]()
	}
	q.Text = strings.TrimSpace(q.Text)
	q.Author = strings.TrimSpace(q.Author)
	if q.Text == "" {
		return Absent[Quote]()
	}
	return Parsed(q)
}

// ParseTemperamentResult decodes the first TEMPERAMENT_RESULT marker.
func ParseTemperamentResult(raw string) Result[TemperamentResult] {
	var r TemperamentResult
	if !decodeFirst(temperamentPattern, raw, &r) {
		return Absent[TemperamentResult]()
	}
	r.Main = strings.TrimSpace(r.Main)
	r.Sub = strings.TrimSpace(r.Sub)
	return Parsed(r)
}

// decodeFirst unmarshals the first match of re into v. Only JSON objects are
// accepted so that a literal null does not decode into a zero value.
func decodeFirst(re *regexp.Regexp, raw string, v any) bool {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return false
	}
	payload := bytes.TrimSpace([]byte(m[1]))
	if len(payload) == 0 || payload[0] != '{' {
		return false
	}
	return json.Unmarshal(payload, v) == nil
}

// Clean removes every marker, well-formed or not, and trims the result.
// Clean(Clean(s)) == Clean(s) for every s.
func Clean(raw string) string {
	out := raw
	for {
		prev := out
		for _, re := range blockPatterns {
			out = re.ReplaceAllString(out, "")
		}
		out = strayTagPattern.ReplaceAllString(out, "")
		if out == prev {
			break
		}
	}
	return strings.TrimSpace(out)
}
