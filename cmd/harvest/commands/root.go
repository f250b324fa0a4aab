// Package commands implements the CLI commands for harvest.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/extract"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/proxy"
	"github.com/jmylchreest/harvest/pkg/store"
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Resilient proxy-based content harvester",
	Long: `Harvest fetches the pages of a research-group website through a rotating
set of public CORS relays, extracts news, events, lectures, publications,
members and projects, and caches the result.

Relays are ranked by observed success rate and latency. When every relay
fails, the last cached content is served instead.

Examples:
  # Scrape everything, using the cache when it is still valid
  harvest scrape

  # Ignore the cache and print items as JSON
  harvest scrape --no-cache --format json

  # Retry a single category
  harvest retry publications

  # Show how the relays have been doing
  harvest proxies stats`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.harvest.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.Bool("log-json", false, "write logs as JSON")

	// Store flags
	flags.String("store", "", "store driver: sqlite, file, memory (default sqlite)")
	flags.String("store-path", "", "store location (default $HOME/.harvest/harvest.db)")
	flags.String("max-value-size", "", "largest value the store accepts (e.g., 5MB, 0=unlimited)")
	flags.String("max-store-size", "", "total size of all stored values (e.g., 50MB, 0=unlimited)")
	flags.String("rules", "", "extraction rules file (default: built-in rules)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("store.driver", flags.Lookup("store"))
	_ = viper.BindPFlag("store.path", flags.Lookup("store-path"))
	_ = viper.BindPFlag("store.max_value_size", flags.Lookup("max-value-size"))
	_ = viper.BindPFlag("store.max_total_size", flags.Lookup("max-store-size"))
	_ = viper.BindPFlag("rules", flags.Lookup("rules"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".harvest")
		viper.SetConfigType("yaml")
	}

	// Environment variables (HARVEST_STORE_PATH, HARVEST_SCRAPE_MAX_RETRIES, ...)
	viper.SetEnvPrefix("HARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("scrape.max_retries", harvest.DefaultMaxRetries)
	viper.SetDefault("scrape.page_timeout", harvest.DefaultPageTimeout)
	viper.SetDefault("scrape.proxy_delay", harvest.DefaultProxyDelay)
	viper.SetDefault("scrape.retry_backoff", harvest.DefaultRetryBackoff)
	viper.SetDefault("scrape.min_page_length", harvest.DefaultMinPageLength)
	viper.SetDefault("check_url", harvest.DefaultBaseURL)

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setupLogging initializes the logger from the global flags.
func setupLogging() {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})
	if path := viper.ConfigFileUsed(); path != "" {
		logger.Debug("config loaded", "path", path)
	}
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// storeConfig resolves the store settings from flags, env and config file.
func storeConfig() (store.Config, error) {
	cfg := store.Config{
		Driver: viper.GetString("store.driver"),
		Path:   viper.GetString("store.path"),
	}

	var err error
	if cfg.MaxValueBytes, err = parseSize("store.max_value_size", "max-value-size"); err != nil {
		return store.Config{}, err
	}
	if cfg.MaxTotalBytes, err = parseSize("store.max_total_size", "max-store-size"); err != nil {
		return store.Config{}, err
	}

	if cfg.Path == "" && cfg.Driver != store.DriverMemory {
		home, err := os.UserHomeDir()
		if err != nil {
			return store.Config{}, fmt.Errorf("cannot locate home directory, use --store-path: %w", err)
		}
		cfg.Path = filepath.Join(home, ".harvest")
		if cfg.Driver != store.DriverFile {
			cfg.Path = filepath.Join(cfg.Path, "harvest.db")
		}
	}
	return cfg, nil
}

// parseSize reads a human-readable byte size such as "5MB" from viper.
// Empty and "0" mean unlimited.
func parseSize(key, flag string) (int, error) {
	size := strings.TrimSpace(viper.GetString(key))
	if size == "" || size == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", flag, size, err)
	}
	return int(n), nil //#nosec G115 -- sizes are far below MaxInt
}

// loadRules returns the extraction rules: a --rules file, else inline
// exclude/categories from the config file, else the built-in rules.
func loadRules() (*extract.Rules, error) {
	if path := viper.GetString("rules"); path != "" {
		logger.Debug("loading rules", "path", path)
		return extract.LoadRules(path)
	}
	if !viper.IsSet("categories") {
		return extract.DefaultRules()
	}

	// Viper has already decoded the YAML; re-encode the subtree so the rules
	// go through the same parse and validation as a rules file.
	data, err := yaml.Marshal(map[string]any{
		"exclude":    viper.Get("exclude"),
		"categories": viper.Get("categories"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read categories from config: %w", err)
	}
	return extract.ParseRules(data)
}

// buildHarvester opens the store and creates a Harvester from the config.
// The returned cleanup closes both.
func buildHarvester(opts ...harvest.Option) (*harvest.Harvester, func(), error) {
	storeCfg, err := storeConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(storeCfg)
	if err != nil {
		logger.Error("failed to open store", "driver", storeCfg.Driver, "path", storeCfg.Path, "error", err)
		return nil, nil, err
	}
	logger.Debug("store opened", "driver", storeCfg.Driver, "path", storeCfg.Path)

	rules, err := loadRules()
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	base := []harvest.Option{
		harvest.WithStore(st),
		harvest.WithCategories(rules),
		harvest.WithCheckURL(viper.GetString("check_url")),
		harvest.WithMaxRetries(viper.GetInt("scrape.max_retries")),
		harvest.WithPageTimeout(viper.GetDuration("scrape.page_timeout")),
		harvest.WithProxyDelay(viper.GetDuration("scrape.proxy_delay")),
		harvest.WithRetryBackoff(viper.GetDuration("scrape.retry_backoff")),
		harvest.WithMinPageLength(viper.GetInt("scrape.min_page_length")),
	}
	if viper.IsSet("proxies") {
		var proxies []proxy.Proxy
		if err := viper.UnmarshalKey("proxies", &proxies); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("failed to read proxies from config: %w", err)
		}
		logger.Debug("using configured proxies", "count", len(proxies))
		base = append(base, harvest.WithProxies(proxies))
	}
	if ua := viper.GetString("user_agent"); ua != "" {
		base = append(base, harvest.WithUserAgent(ua))
	}

	h, err := harvest.New(append(base, opts...)...)
	if err != nil {
		_ = st.Close()
		logger.Error("failed to initialize", "error", err)
		return nil, nil, err
	}

	cleanup := func() {
		if err := h.Close(); err != nil {
			logger.Warn("failed to close harvester", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}
	return h, cleanup, nil
}
