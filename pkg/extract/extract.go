package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/harvest/pkg/content"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	// Non-breaking and zero-width spaces are common in CMS output.
	oddSpaces = strings.NewReplacer("\u00a0", " ", "\u200b", " ")
)

// cleanText collapses runs of whitespace and trims.
func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(oddSpaces.Replace(s), " "))
}

// Page extracts every item the source's rules find in html. Items are
// de-duplicated by id, first occurrence wins.
func (src Source) Page(cat content.Category, html string) ([]content.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src.URL, err)
	}

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", src.URL, err)
	}

	var items []content.Item
	for i := range src.Rules {
		items = append(items, src.Rules[i].apply(doc, base, cat)...)
	}
	return content.Dedupe(items), nil
}

// Page extracts items for cat from the html of the source at index.
func (r *Rules) Page(cat content.Category, index int, html string) ([]content.Item, error) {
	sources := r.Sources(cat)
	if index < 0 || index >= len(sources) {
		return nil, fmt.Errorf("%s has no source %d", cat, index)
	}
	return sources[index].Page(cat, html)
}

func (rule *Rule) scope(doc *goquery.Document) *goquery.Selection {
	if rule.Scope != "" {
		if sel := doc.Find(rule.Scope); sel.Length() > 0 {
			return sel
		}
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func (rule *Rule) apply(doc *goquery.Document, base *url.URL, cat content.Category) []content.Item {
	root := rule.scope(doc)

	selector := rule.Item
	if rule.Group != "" {
		selector = rule.Item + ", " + rule.Group
	}

	var items []content.Item
	group := ""
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if rule.Group != "" && s.Is(rule.Group) {
			if heading, ok := rule.heading(s); ok {
				group = heading
				return
			}
		}
		if !s.Is(rule.Item) {
			return
		}
		if item, ok := rule.item(s, base, cat, group); ok {
			items = append(items, item)
		}
	})
	return items
}

// heading reports whether s is a group heading and returns its value.
func (rule *Rule) heading(s *goquery.Selection) (string, bool) {
	text := cleanText(s.Text())
	if text == "" {
		return "", false
	}

	if rule.groupPattern != nil {
		m := rule.groupPattern.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}

	if len(rule.GroupNames) > 0 {
		for _, name := range rule.GroupNames {
			if strings.Contains(text, name) {
				return name, true
			}
		}
		return "", false
	}
	return text, true
}

func (rule *Rule) item(s *goquery.Selection, base *url.URL, cat content.Category, group string) (content.Item, bool) {
	titleSel := s
	if rule.Title != "" {
		titleSel = s.Find(rule.Title).First()
		if titleSel.Length() == 0 {
			return content.Item{}, false
		}
	}
	title := cleanText(titleSel.Text())
	n := utf8.RuneCountInString(title)
	if title == "" || rule.exclude[title] || n < rule.MinTitleLength {
		return content.Item{}, false
	}
	if rule.MaxTitleLength > 0 && n > rule.MaxTitleLength {
		return content.Item{}, false
	}

	link := rule.link(s, base)
	if link == "" && rule.RequireLink {
		return content.Item{}, false
	}
	if rule.linkPattern != nil && !rule.linkPattern.MatchString(link) {
		return content.Item{}, false
	}

	it := content.Item{
		Title:    title,
		URL:      link,
		Category: cat,
	}

	switch rule.GroupField {
	case groupFieldDate:
		it.Date = group
	default:
		it.Pillar = group
	}
	if it.Date == "" {
		it.Date = rule.date(s, link)
	}
	if it.Date == "" && rule.RequireDate {
		return content.Item{}, false
	}
	if it.Date == "" {
		it.Date = rule.DefaultDate
	}

	if rule.Summary != "" {
		it.Summary = truncate(cleanText(s.Find(rule.Summary).First().Text()), rule.SummaryMaxLength)
	}
	if rule.refPattern != nil {
		if m := rule.refPattern.FindStringSubmatch(link); len(m) > 1 {
			if id, err := strconv.Atoi(m[1]); err == nil {
				it.ErefID = id
			}
		}
	}
	for name, sel := range rule.Extra {
		if v := cleanText(s.Find(sel).First().Text()); v != "" {
			if it.Extra == nil {
				it.Extra = map[string]string{}
			}
			it.Extra[name] = v
		}
	}

	key := it.Date
	if rule.IDFrom == IDFromPillar {
		key = it.Pillar
	}
	if key == "" {
		key = rule.IDFallback
	}
	it.ID = content.GenerateID(it.Title, key)
	return it, true
}

func (rule *Rule) link(s *goquery.Selection, base *url.URL) string {
	var linkSel *goquery.Selection
	switch {
	case rule.Link != "":
		linkSel = s.Find(rule.Link).First()
	case goquery.NodeName(s) == "a":
		linkSel = s
	default:
		linkSel = s.Find("a[href]").First()
	}

	href, exists := linkSel.Attr("href")
	if !exists {
		return ""
	}
	link, _ := ResolveLink(base, href)
	return link
}

func (rule *Rule) date(s *goquery.Selection, link string) string {
	var text string
	switch {
	case rule.DateFromURL:
		text = link
	case rule.Date != "":
		text = cleanText(s.Find(rule.Date).First().Text())
	default:
		text = cleanText(s.Text())
	}

	if rule.datePattern == nil {
		if rule.Date != "" {
			return text
		}
		return ""
	}
	m := rule.datePattern.FindStringSubmatch(text)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

func truncate(s string, limit int) string {
	if limit <= 3 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
