// Package harvest scrapes the content categories of a website through a pool
// of public CORS relays, ranking relays by their track record, retrying
// categories with backoff and falling back to cached content when the relays
// are down.
package harvest

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/harvest/internal/version"
	"github.com/jmylchreest/harvest/pkg/extract"
	"github.com/jmylchreest/harvest/pkg/fetcher"
	"github.com/jmylchreest/harvest/pkg/proxy"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
	"github.com/jmylchreest/harvest/pkg/store"
)

// DefaultBaseURL is the site harvested by default. It doubles as the proxy
// health check target.
const DefaultBaseURL = "https://www.rais2.uni-bayreuth.de/en/"

// Defaults for page fetching and retries.
const (
	DefaultPageTimeout   = 30 * time.Second
	DefaultProxyDelay    = 350 * time.Millisecond
	DefaultRetryBackoff  = 500 * time.Millisecond
	DefaultMaxRetries    = 3
	DefaultMinPageLength = 5000
)

// Config holds all Harvester configuration.
type Config struct {
	// Dependencies. Nil values are replaced by defaults in New.
	Store    store.Store     `validate:"-"`
	Fetcher  fetcher.Fetcher `validate:"-"`
	Rules    *extract.Rules  `validate:"-"`
	Observer Observer        `validate:"-"`
	Log      *scrapelog.Log  `validate:"-"`
	Scraper  CategoryScraper `validate:"-"`

	// Relay settings
	Proxies  []proxy.Proxy `validate:"required,min=1,dive"`
	CheckURL string        `validate:"required,url"`

	// Fetch settings
	UserAgent     string
	PageTimeout   time.Duration `validate:"gt=0"`
	ProxyDelay    time.Duration `validate:"gte=0"`
	MinPageLength int           `validate:"gte=0"`

	// Retry settings
	MaxRetries   int           `validate:"gte=1"`
	RetryBackoff time.Duration `validate:"gte=0"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Proxies:       proxy.DefaultProxies(),
		CheckURL:      DefaultBaseURL,
		UserAgent:     version.UserAgent(),
		PageTimeout:   DefaultPageTimeout,
		ProxyDelay:    DefaultProxyDelay,
		MinPageLength: DefaultMinPageLength,
		MaxRetries:    DefaultMaxRetries,
		RetryBackoff:  DefaultRetryBackoff,
	}
}

// Validate checks the configuration for missing or out-of-range values.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid harvest config: %w", err)
	}
	return nil
}

// Option configures a Harvester.
type Option func(*Config)

// WithStore sets the durable key-value store.
func WithStore(st store.Store) Option {
	return func(c *Config) {
		c.Store = st
	}
}

// WithFetcher sets the HTTP client used for relay requests.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Config) {
		c.Fetcher = f
	}
}

// WithProxies replaces the relay list. Order is the score tie-break.
func WithProxies(proxies []proxy.Proxy) Option {
	return func(c *Config) {
		c.Proxies = proxies
	}
}

// WithCategories sets the extraction rules (and with them the source pages).
func WithCategories(rules *extract.Rules) Option {
	return func(c *Config) {
		c.Rules = rules
	}
}

// WithObserver sets the receiver of status and progress notifications.
func WithObserver(obs Observer) Option {
	return func(c *Config) {
		c.Observer = obs
	}
}

// WithScraper replaces how a category's items are produced. The default
// fetches the category's source pages and applies the extraction rules.
func WithScraper(s CategoryScraper) Option {
	return func(c *Config) {
		c.Scraper = s
	}
}

// WithLog sets the scrape event log.
func WithLog(l *scrapelog.Log) Option {
	return func(c *Config) {
		c.Log = l
	}
}

// WithCheckURL sets the health check target.
func WithCheckURL(u string) Option {
	return func(c *Config) {
		c.CheckURL = u
	}
}

// WithUserAgent sets the HTTP user agent.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithPageTimeout sets the per-relay request timeout.
func WithPageTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PageTimeout = d
	}
}

// WithProxyDelay sets the pause between relay attempts.
func WithProxyDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ProxyDelay = d
	}
}

// WithRetryBackoff sets the base backoff; attempt n waits n times this.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.RetryBackoff = d
	}
}

// WithMaxRetries sets the attempts per category.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithMinPageLength sets the length below which a relay response is
// treated as an error page.
func WithMinPageLength(n int) Option {
	return func(c *Config) {
		c.MinPageLength = n
	}
}
