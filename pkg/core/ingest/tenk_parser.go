package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// =============================================================================
// 10-K SECTION DEFINITIONS
// =============================================================================

// Section is one Item of a 10-K.
type Section struct {
	ItemNumber  string `json:"item_number"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Priority    int    `json:"priority"` // 1 = most useful for segment valuation
}

// SectionDefinitions lists the Items of Form 10-K. Properties (bed counts,
// owned vs leased), MD&A and the financial statements (segment note) carry
// the SOTP inputs.
var SectionDefinitions = []struct {
	ItemNumber string
	Title      string
	Priority   int
}{
	{"1", "Business", 2},
	{"1A", "Risk Factors", 3},
	{"1B", "Unresolved Staff Comments", 5},
	{"1C", "Cybersecurity", 5},
	{"2", "Properties", 1},
	{"3", "Legal Proceedings", 4},
	{"4", "Mine Safety Disclosures", 5},
	{"5", "Market for Common Equity", 3},
	{"6", "Reserved", 5},
	{"7", "MD&A", 1},
	{"7A", "Market Risk", 4},
	{"8", "Financial Statements", 1},
	{"9", "Accounting Disagreements", 5},
	{"9A", "Controls and Procedures", 5},
	{"9B", "Other Information", 5},
	{"9C", "Foreign Jurisdictions", 5},
	{"10", "Directors and Governance", 5},
	{"11", "Executive Compensation", 5},
	{"12", "Security Ownership", 5},
	{"13", "Related Transactions", 4},
	{"14", "Accountant Fees", 5},
	{"15", "Exhibits and Schedules", 5},
}

// =============================================================================
// PARSER
// =============================================================================

// TenKParser splits 10-K text into Items.
type TenKParser struct {
	patterns []*regexp.Regexp
}

// NewTenKParser creates a parser. Headings match at the start of a line:
//
//	ITEM 7. MANAGEMENT'S DISCUSSION AND ANALYSIS
//	Item 1A - Risk Factors
//	Item 2: Properties
func NewTenKParser() *TenKParser {
	patterns := make([]*regexp.Regexp, 0, len(SectionDefinitions))
	for _, def := range SectionDefinitions {
		// \b keeps "Item 1" from matching "Item 1A".
		p := `(?im)^[ \t]*item[ \t\x{00a0}]+` + regexp.QuoteMeta(def.ItemNumber) + `\b[ \t]*[.:\-\x{2013}\x{2014}]?`
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return &TenKParser{patterns: patterns}
}

// ParseSections extracts the Items found in content. HTML input is converted
// to text first. When an Item heading appears more than once (table of
// contents, then body) the last occurrence wins.
func (p *TenKParser) ParseSections(content string) []Section {
	if looksLikeHTML(content) {
		if text, err := HTMLToText(content); err == nil {
			content = text
		}
	}

	type boundary struct {
		def    int
		offset int
	}
	boundaries := make([]boundary, 0, len(p.patterns))
	for i, pattern := range p.patterns {
		matches := pattern.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}
		boundaries = append(boundaries, boundary{def: i, offset: matches[len(matches)-1][0]})
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].offset < boundaries[j].offset })

	sections := make([]Section, 0, len(boundaries))
	for i, b := range boundaries {
		end := len(content)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].offset
		}
		def := SectionDefinitions[b.def]
		sections = append(sections, Section{
			ItemNumber:  def.ItemNumber,
			Title:       def.Title,
			Content:     cleanContent(content[b.offset:end]),
			StartOffset: b.offset,
			EndOffset:   end,
			Priority:    def.Priority,
		})
	}
	return sections
}

// GetSectionByItem returns one Item, or nil when it is absent.
func (p *TenKParser) GetSectionByItem(content string, itemNumber string) *Section {
	for _, s := range p.ParseSections(content) {
		if strings.EqualFold(s.ItemNumber, itemNumber) {
			return &s
		}
	}
	return nil
}

// GetPrioritySections returns the Items ordered by priority, keeping
// document order within a priority.
func (p *TenKParser) GetPrioritySections(content string) []Section {
	sections := p.ParseSections(content)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Priority < sections[j].Priority })
	return sections
}

// =============================================================================
// HTML AND NUMBERS
// =============================================================================

const blockSelector = "p, div, tr, li, h1, h2, h3, h4, h5, h6, table, section"

// HTMLToText renders filing HTML as plain text with one line per block
// element, so Item headings stay at the start of a line.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
		s.AppendHtml("\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

func looksLikeHTML(s string) bool {
	head := s
	if len(head) > 2048 {
		head = head[:2048]
	}
	head = strings.ToLower(head)
	return strings.Contains(head, "<html") || strings.Contains(head, "<body") ||
		strings.Contains(head, "<div") || strings.Contains(head, "<p")
}

var amountPattern = regexp.MustCompile(`(?i)(\(?)\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(thousand|million|billion)?`)

// ParseAmount reads the first number in text, applying a unit word if one
// follows it. "$1.2 billion" is 1.2e9; "(4,378)" is -4378.
func ParseAmount(text string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[3]) {
	case "thousand":
		v *= 1e3
	case "million":
		v *= 1e6
	case "billion":
		v *= 1e9
	}
	if m[1] == "(" {
		v = -v
	}
	return v, true
}

// cleanContent collapses whitespace and strips leftover tags.
func cleanContent(content string) string {
	content = htmlTag.ReplaceAllString(content, "")
	content = whitespace.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)
