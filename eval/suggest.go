package eval

import (
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Suggestions are candidate expectations derived from a sample
// response, to speed up dataset authoring. Advisory only: nothing in
// the evaluation core depends on them.
type Suggestions struct {
	TextContains []string `json:"textContains"`
	Regex        []string `json:"regex"`
}

const (
	maxSpanSuggestions  = 3
	spanOccurrenceLimit = 5
	firstLineMaxLen     = 50
)

var (
	headerLineRe   = regexp.MustCompile(`^#{1,6}\s+.+$`)
	boldSpanRe     = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	keyValueLineRe = regexp.MustCompile(`^[A-Za-z][\w .*-]{0,40}:\s+\S.*$`)
)

// formatDetector contributes one canonical, generalized pattern when
// its probe matches the sample text. The suggestion is a pattern
// string, never the literal match.
type formatDetector struct {
	name    string
	probe   *regexp.Regexp
	pattern string
}

var formatDetectors = []formatDetector{
	{"iso-date", regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), `\d{4}-\d{2}-\d{2}`},
	{"clock-time", regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`), `\d{1,2}:\d{2}(:\d{2})?`},
	{"temperature", regexp.MustCompile(`-?\d+(\.\d+)?\s?°\s?[CF]`), `-?\d+(\.\d+)?\s?°\s?[CF]`},
	{"url", regexp.MustCompile(`https?://\S+`), `https?://\S+`},
	{"email", regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`), `[\w.+-]+@[\w-]+\.[\w.-]+`},
	{"percentage", regexp.MustCompile(`\d+(\.\d+)?%`), `\d+(\.\d+)?%`},
	{"currency", regexp.MustCompile(`[$€£]\s?\d+(\.\d{2})?`), `[$€£]\s?\d+(\.\d{2})?`},
	{"bold-span", regexp.MustCompile(`\*\*[^*\n]+\*\*`), `\*\*[^*]+\*\*`},
	{"bullet-list", regexp.MustCompile(`(?m)^\s*[-*•]\s+.+$`), `^\s*[-*•]\s+.+`},
	{"numbered-list", regexp.MustCompile(`(?m)^\s*\d+\.\s+.+$`), `^\s*\d+\.\s+.+`},
	{"phone", regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`), `\+?\d[\d\s().-]{7,}\d`},
	{"ipv4", regexp.MustCompile(`\b(\d{1,3}\.){3}\d{1,3}\b`), `\b(\d{1,3}\.){3}\d{1,3}\b`},
}

// Suggest analyzes a sample response and proposes candidate
// expectations. The tool descriptor is accepted for parity with the
// authoring flow; suggestions are derived from the response alone.
func Suggest(resp any, _ *mcp.Tool) Suggestions {
	text := ExtractText(resp)

	return Suggestions{
		TextContains: suggestText(text),
		Regex:        suggestRegex(text),
	}
}

func suggestText(text string) []string {
	var out []string

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if headerLineRe.MatchString(trimmed) {
			out = append(out, trimmed)
		}
	}

	// Bold spans and Key: value lines tend to be stable anchors, but
	// only when there are few of them; a response with dozens would
	// overwhelm the dataset author.
	if spans := boldSpanRe.FindAllStringSubmatch(text, -1); len(spans) >= 1 && len(spans) <= spanOccurrenceLimit {
		for i, span := range spans {
			if i >= maxSpanSuggestions {
				break
			}
			out = append(out, span[1])
		}
	}

	var kvLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if keyValueLineRe.MatchString(trimmed) {
			kvLines = append(kvLines, trimmed)
		}
	}
	if len(kvLines) >= 1 && len(kvLines) <= spanOccurrenceLimit {
		for i, line := range kvLines {
			if i >= maxSpanSuggestions {
				break
			}
			out = append(out, line)
		}
	}

	if len(out) == 0 && strings.TrimSpace(text) != "" {
		first := trimToRuneBoundary(strings.TrimSpace(lines[0]), firstLineMaxLen)
		out = append(out, first)
	}

	return dedupe(out)
}

func suggestRegex(text string) []string {
	var out []string
	for _, d := range formatDetectors {
		if d.probe.MatchString(text) {
			out = append(out, d.pattern)
		}
	}
	return dedupe(out)
}

// dedupe keeps the first occurrence of each entry, preserving order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
