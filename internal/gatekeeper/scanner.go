package gatekeeper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Pattern is one attack signature.
type Pattern struct {
	Name        string
	Description string
	re          *regexp.Regexp
}

// Scanner matches requests against a fixed signature set.
//
// The scanned text is the JSON serialization of {url, query, body, headers},
// folded with NFKC so full-width look-alikes match their ASCII forms.
type Scanner struct {
	patterns []Pattern
}

// NewScanner returns a Scanner with the built-in patterns. Compiled once.
func NewScanner() *Scanner {
	return &Scanner{patterns: []Pattern{
		{Name: "path_traversal", Description: "Path traversal attempt", re: regexp.MustCompile(`\.\./`)},
		{Name: "script_injection", Description: "Script injection attempt", re: regexp.MustCompile(`(?i)<script`)},
		{Name: "sql_injection", Description: "SQL injection attempt", re: regexp.MustCompile(`(?is)union.*select`)},
		{Name: "javascript_uri", Description: "JavaScript URI scheme", re: regexp.MustCompile(`(?i)javascript:`)},
		{Name: "code_evaluation", Description: "Code evaluation attempt", re: regexp.MustCompile(`(?i)eval\(`)},
	}}
}

// Patterns returns the signature set in evaluation order.
func (s *Scanner) Patterns() []Pattern { return s.patterns }

// scanPayload is the serialized shape handed to the patterns.
type scanPayload struct {
	URL     string              `json:"url"`
	Query   url.Values          `json:"query"`
	Body    string              `json:"body"`
	Headers map[string][]string `json:"headers"`
}

// Scan reports every pattern that matches r. An empty result means clean.
func (s *Scanner) Scan(r domain.Request) ([]Pattern, error) {
	text, err := serialize(r)
	if err != nil {
		return nil, err
	}
	return s.Match(text), nil
}

// Match applies all patterns to text.
func (s *Scanner) Match(text string) []Pattern {
	text = norm.NFKC.String(text)

	var hits []Pattern
	for _, p := range s.patterns {
		if p.re.MatchString(text) {
			hits = append(hits, p)
		}
	}
	return hits
}

// serialize renders r as JSON without HTML escaping, so "<script" survives.
func serialize(r domain.Request) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(scanPayload{
		URL:     r.URL,
		Query:   r.Query,
		Body:    string(r.Body),
		Headers: r.Headers,
	})
	if err != nil {
		return "", fmt.Errorf("serialize request for scan: %w", err)
	}
	return buf.String(), nil
}

// Descriptions returns the human-readable descriptions of ps.
func Descriptions(ps []Pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Description
	}
	return out
}
