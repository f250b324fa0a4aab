// Package extract turns fetched pages into content items using CSS
// selector rules loaded from configuration. It holds no site knowledge of
// its own: every selector comes from a Rules document.
package extract

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/harvest/pkg/content"
)

// IDFrom selects the second half of the "title|x" id hash input.
type IDFrom string

const (
	IDFromDate   IDFrom = "date"
	IDFromPillar IDFrom = "pillar"
)

const (
	groupFieldPillar = "pillar"
	groupFieldDate   = "date"
)

// Rule extracts items from one kind of block on a page.
type Rule struct {
	// Scope narrows the search to a container. Falls back to <body> when
	// the scope is missing from the page.
	Scope string `yaml:"scope"`
	// Item selects one element per candidate item.
	Item string `yaml:"item" validate:"required"`
	// Group selects headings that precede items in document order. The
	// text of the latest heading is recorded on each following item.
	Group string `yaml:"group"`
	// GroupNames restricts Group headings to those containing one of these names.
	GroupNames []string `yaml:"group_names"`
	// GroupPattern restricts Group headings to text matching it. The first
	// submatch, when present, becomes the heading value.
	GroupPattern string `yaml:"group_pattern"`
	// GroupField is where the heading value lands: "pillar" (default) or "date".
	GroupField string `yaml:"group_field" validate:"omitempty,oneof=pillar date"`

	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Date    string `yaml:"date"`
	Summary string `yaml:"summary"`

	// DatePattern is matched against the date text (or the item text when
	// Date is empty). The first submatch wins, else the whole match.
	DatePattern string `yaml:"date_pattern"`
	// DateFromURL matches DatePattern against the resolved link instead.
	DateFromURL bool   `yaml:"date_from_url"`
	DefaultDate string `yaml:"default_date"`
	RequireDate bool   `yaml:"require_date"`
	RequireLink bool   `yaml:"require_link"`

	// LinkPattern, when set, drops items whose resolved link does not match.
	LinkPattern string `yaml:"link_pattern"`
	// RefPattern captures a numeric reference id from the link (eref ids).
	RefPattern string `yaml:"ref_pattern"`

	IDFrom IDFrom `yaml:"id_from" validate:"omitempty,oneof=date pillar"`
	// IDFallback replaces an empty pillar or date in the id hash input.
	IDFallback string `yaml:"id_fallback"`

	SummaryMaxLength int               `yaml:"summary_max_length" validate:"gte=0"`
	MinTitleLength int               `yaml:"min_title_length" validate:"gte=0"`
	MaxTitleLength int               `yaml:"max_title_length" validate:"gte=0"`
	Exclude        []string          `yaml:"exclude"`
	Extra          map[string]string `yaml:"extra"`

	datePattern  *regexp.Regexp
	linkPattern  *regexp.Regexp
	refPattern   *regexp.Regexp
	groupPattern *regexp.Regexp
	exclude      map[string]bool
}

// Source is a page and the rules applied to it.
type Source struct {
	URL   string `yaml:"url" validate:"required,url"`
	Rules []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

// CategoryRules lists the pages a category is scraped from, in order.
type CategoryRules struct {
	Sources []Source `yaml:"sources" validate:"required,min=1,dive"`
}

// Rules maps each category to its sources.
type Rules struct {
	// Exclude applies to every rule (site navigation labels and the like).
	Exclude    []string                           `yaml:"exclude"`
	Categories map[content.Category]CategoryRules `yaml:"categories" validate:"required,dive"`
}

//go:embed defaults.yaml
var defaultRules []byte

// DefaultRules returns the built-in rules for the RAIS2 site.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- CLI reads a user-specified rules file
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes, validates and compiles a YAML rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	if err := validator.New().Struct(r); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	for cat, cr := range r.Categories {
		if _, err := content.ParseCategory(string(cat)); err != nil {
			return err
		}
		for si := range cr.Sources {
			for ri := range cr.Sources[si].Rules {
				rule := &cr.Sources[si].Rules[ri]
				if err := rule.compile(r.Exclude); err != nil {
					return fmt.Errorf("%s source %d rule %d: %w", cat, si, ri, err)
				}
			}
		}
	}
	return nil
}

func (rule *Rule) compile(globalExclude []string) error {
	if rule.DatePattern != "" {
		re, err := regexp.Compile(rule.DatePattern)
		if err != nil {
			return fmt.Errorf("bad date_pattern: %w", err)
		}
		rule.datePattern = re
	}
	if rule.LinkPattern != "" {
		re, err := regexp.Compile(rule.LinkPattern)
		if err != nil {
			return fmt.Errorf("bad link_pattern: %w", err)
		}
		rule.linkPattern = re
	}
	if rule.RefPattern != "" {
		re, err := regexp.Compile(rule.RefPattern)
		if err != nil {
			return fmt.Errorf("bad ref_pattern: %w", err)
		}
		rule.refPattern = re
	}
	if rule.GroupPattern != "" {
		re, err := regexp.Compile(rule.GroupPattern)
		if err != nil {
			return fmt.Errorf("bad group_pattern: %w", err)
		}
		rule.groupPattern = re
	}
	if rule.IDFrom == "" {
		rule.IDFrom = IDFromDate
	}
	if rule.GroupField == "" {
		rule.GroupField = groupFieldPillar
	}

	rule.exclude = make(map[string]bool, len(globalExclude)+len(rule.Exclude))
	for _, e := range globalExclude {
		rule.exclude[e] = true
	}
	for _, e := range rule.Exclude {
		rule.exclude[e] = true
	}
	return nil
}

// Sources returns the pages configured for cat.
func (r *Rules) Sources(cat content.Category) []Source {
	return r.Categories[cat].Sources
}

// URLs returns the page URLs configured for cat.
func (r *Rules) URLs(cat content.Category) []string {
	var urls []string
	for _, s := range r.Sources(cat) {
		urls = append(urls, s.URL)
	}
	return urls
}
