package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"marketreport/internal/aggregator"
	"marketreport/internal/bondyield"
	"marketreport/internal/fetcher"
	"marketreport/internal/mailer"
	"marketreport/internal/ratelimit"
	"marketreport/internal/scrape"
	"marketreport/internal/yahoo"
)

// InstrumentConfig is one quoted instrument. Category is one of index, fx,
// commodity or yield and picks the display format.
type InstrumentConfig struct {
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol"`
	Category string `mapstructure:"category"`
}

// ExtractorConfig describes how to find the yield on a page.
type ExtractorConfig struct {
	Kind     string `mapstructure:"kind"`
	TableID  string `mapstructure:"table_id"`
	RowLabel string `mapstructure:"row_label"`
	Pattern  string `mapstructure:"pattern"`
}

// PageConfig is one scraped government bond yield page.
type PageConfig struct {
	Name      string          `mapstructure:"name"`
	URL       string          `mapstructure:"url"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
}

type HTTPConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout"`
	UserAgent string            `mapstructure:"user_agent"`
	Headers   map[string]string `mapstructure:"headers"`
}

type YahooConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Range   string `mapstructure:"range"`
}

// ImpliedYieldConfig is the notional bond the futures price is solved against.
type ImpliedYieldConfig struct {
	Coupon        float64 `mapstructure:"coupon"`
	MaturityYears int     `mapstructure:"maturity_years"`
	Face          float64 `mapstructure:"face"`
}

type ReportConfig struct {
	Title    string `mapstructure:"title"`
	Timezone string `mapstructure:"timezone"`
	Output   string `mapstructure:"output"`
}

type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	Bcc      []string `mapstructure:"bcc"`
}

// RateLimitConfig overrides the built-in limit of one upstream. A zero
// PerSecond keeps the built-in limit.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type RateLimitsConfig struct {
	Yahoo  RateLimitConfig `mapstructure:"yahoo"`
	Scrape RateLimitConfig `mapstructure:"scrape"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds all configuration for the market report.
type Config struct {
	Instruments       []InstrumentConfig `mapstructure:"instruments"`
	BondFuturesSymbol string             `mapstructure:"bond_futures_symbol"`
	YieldPages        []PageConfig       `mapstructure:"yield_pages"`

	HTTP              HTTPConfig         `mapstructure:"http"`
	Yahoo             YahooConfig        `mapstructure:"yahoo"`
	ImpliedYield      ImpliedYieldConfig `mapstructure:"implied_yield"`
	Concurrency       int                `mapstructure:"concurrency"`
	RateLimitSettings RateLimitsConfig   `mapstructure:"rate_limits"`

	Report  ReportConfig  `mapstructure:"report"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"output":       "report.output",
	"metrics-file": "metrics.textfile",
	"log-level":    "log.level",
	"concurrency":  "concurrency",
}

// envKeys maps environment variables onto configuration keys
var envKeys = map[string]string{
	"smtp.host":      "SMTP_HOST",
	"smtp.port":      "SMTP_PORT",
	"smtp.username":  "SMTP_USERNAME",
	"smtp.password":  "SMTP_PASSWORD",
	"smtp.from":      "SMTP_FROM",
	"smtp.to":        "REPORT_TO",
	"smtp.bcc":       "REPORT_BCC",
	"yahoo.base_url": "YAHOO_BASE_URL",
	"log.level":      "LOG_LEVEL",
}

// Load reads configuration from the file at path, or from marketreport.yaml in
// the working directory or $HOME/.marketreport when path is empty. Environment
// variables take precedence over the file and set flags take precedence over
// both.
//
// Recognised environment variables:
//   - SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM
//   - REPORT_TO, REPORT_BCC (comma separated)
//   - YAHOO_BASE_URL (optional, defaults to production)
//   - LOG_LEVEL
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("marketreport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.marketreport")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every problem found rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	names := make(map[string]bool)
	symbols := make(map[string]bool)
	for i, inst := range c.Instruments {
		if inst.Name == "" || inst.Symbol == "" {
			add("instruments[%d]: name and symbol are required", i)
		}
		if _, err := fetcher.ParseCategory(inst.Category); err != nil {
			add("instruments[%d] %s: %v", i, inst.Name, err)
		}
		if names[inst.Name] {
			add("duplicate name %q", inst.Name)
		}
		names[inst.Name] = true
		symbols[inst.Symbol] = true
	}
	if c.BondFuturesSymbol != "" && !symbols[c.BondFuturesSymbol] {
		add("bond_futures_symbol %q is not a configured instrument", c.BondFuturesSymbol)
	}
	// the implied yield row takes a name of its own
	for _, inst := range c.QuoteInstruments() {
		if !inst.BondFutures {
			continue
		}
		derived := inst.Name + aggregator.ImpliedYieldSuffix
		if names[derived] {
			add("duplicate name %q", derived)
		}
		names[derived] = true
	}

	for i, page := range c.YieldPages {
		if page.Name == "" || page.URL == "" {
			add("yield_pages[%d]: name and url are required", i)
		}
		if names[page.Name] {
			add("duplicate name %q", page.Name)
		}
		names[page.Name] = true
		if _, err := scrape.NewExtractor(page.extractSpec()); err != nil {
			add("yield_pages[%d] %s: %v", i, page.Name, err)
		}
	}

	if err := c.BondParams().Validate(); err != nil {
		add("implied_yield: %v", err)
	}
	if c.Concurrency < 1 {
		add("concurrency must be at least 1")
	}
	for api, l := range map[ratelimit.API]RateLimitConfig{
		ratelimit.APIYahoo:  c.RateLimitSettings.Yahoo,
		ratelimit.APIScrape: c.RateLimitSettings.Scrape,
	} {
		if l.PerSecond < 0 || l.Burst < 0 {
			add("rate_limits.%s: per_second and burst must not be negative", api)
		}
	}
	if c.HTTP.Timeout <= 0 {
		add("http.timeout must be positive")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.SMTP.Host != "" {
		if c.SMTP.From == "" {
			add("smtp.from is required when smtp.host is set")
		}
		if len(c.SMTP.To)+len(c.SMTP.Bcc) == 0 {
			add("smtp needs at least one to or bcc recipient")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// QuoteInstruments converts the instrument list, marking the bond futures.
func (c *Config) QuoteInstruments() []fetcher.Instrument {
	out := make([]fetcher.Instrument, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		category, _ := fetcher.ParseCategory(inst.Category)
		out = append(out, fetcher.Instrument{
			Name:        inst.Name,
			Symbol:      inst.Symbol,
			Category:    category,
			BondFutures: c.BondFuturesSymbol != "" && inst.Symbol == c.BondFuturesSymbol,
		})
	}
	return out
}

// Pages converts the yield page list
func (c *Config) Pages() []fetcher.Page {
	out := make([]fetcher.Page, 0, len(c.YieldPages))
	for _, p := range c.YieldPages {
		out = append(out, fetcher.Page{Name: p.Name, URL: p.URL, Extract: p.extractSpec()})
	}
	return out
}

func (p PageConfig) extractSpec() fetcher.ExtractSpec {
	return fetcher.ExtractSpec{
		Kind:     strings.ToLower(p.Extractor.Kind),
		TableID:  p.Extractor.TableID,
		RowLabel: p.Extractor.RowLabel,
		Pattern:  p.Extractor.Pattern,
	}
}

// BondParams returns the notional bond for the implied yield
func (c *Config) BondParams() bondyield.Params {
	return bondyield.Params{
		Coupon: c.ImpliedYield.Coupon,
		Years:  c.ImpliedYield.MaturityYears,
		Face:   c.ImpliedYield.Face,
	}
}

// ClientOptions returns the settings shared by every HTTP client
func (c *Config) ClientOptions() fetcher.ClientOptions {
	return fetcher.ClientOptions{
		Timeout:   c.HTTP.Timeout,
		UserAgent: c.HTTP.UserAgent,
		Headers:   c.HTTP.Headers,
	}
}

// RateLimits returns the configured per-upstream overrides. Upstreams left at
// zero are omitted; a zero burst becomes 1.
func (c *Config) RateLimits() map[ratelimit.API]RateLimitConfig {
	out := make(map[ratelimit.API]RateLimitConfig)
	for api, l := range map[ratelimit.API]RateLimitConfig{
		ratelimit.APIYahoo:  c.RateLimitSettings.Yahoo,
		ratelimit.APIScrape: c.RateLimitSettings.Scrape,
	} {
		if l.PerSecond <= 0 {
			continue
		}
		if l.Burst < 1 {
			l.Burst = 1
		}
		out[api] = l
	}
	return out
}

// MailEnabled reports whether an SMTP server is configured
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}

// Mailer returns the SMTP settings
func (c *Config) Mailer() mailer.Config {
	return mailer.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		To:       c.SMTP.To,
		Bcc:      c.SMTP.Bcc,
	}
}

// LogLevel returns the parsed log.level, info when unparseable
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instruments", defaultInstruments())
	v.SetDefault("bond_futures_symbol", "ZN=F")
	v.SetDefault("yield_pages", defaultPages())

	v.SetDefault("http.timeout", fetcher.DefaultTimeout)
	v.SetDefault("http.user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("yahoo.base_url", yahoo.DefaultBaseURL)
	v.SetDefault("yahoo.range", yahoo.DefaultRange)

	bond := bondyield.DefaultParams()
	v.SetDefault("implied_yield.coupon", bond.Coupon)
	v.SetDefault("implied_yield.maturity_years", bond.Years)
	v.SetDefault("implied_yield.face", bond.Face)
	v.SetDefault("concurrency", 1)

	v.SetDefault("report.title", "Daily Market Report")
	v.SetDefault("report.timezone", "America/New_York")
	v.SetDefault("report.output", "market_report.html")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func defaultInstruments() []map[string]any {
	list := []InstrumentConfig{
		{"Nikkei 225", "^N225", "index"},
		{"Hang Seng", "^HSI", "index"},
		{"SSE Composite", "000001.SS", "index"},
		{"FTSE 100", "^FTSE", "index"},
		{"DAX Index", "^GDAXI", "index"},
		{"S&P 500 (prior day)", "^GSPC", "index"},
		{"Dow Jones (prior day)", "^DJI", "index"},
		{"Nasdaq Composite (prior day)", "^IXIC", "index"},
		{"USD/JPY (Yen)", "JPY=X", "fx"},
		{"EUR/USD (Euro)", "EURUSD=X", "fx"},
		{"GBP/USD (Pound)", "GBPUSD=X", "fx"},
		{"Crude Oil (WTI)", "CL=F", "commodity"},
		{"S&P Futures", "ES=F", "index"},
		{"Dow Jones Futures", "YM=F", "index"},
		{"Nasdaq Futures", "NQ=F", "index"},
		{"Gold Futures", "GC=F", "index"},
		{"US-10 Year Bond Futures", "ZN=F", "index"},
	}

	out := make([]map[string]any, 0, len(list))
	for _, inst := range list {
		out = append(out, map[string]any{"name": inst.Name, "symbol": inst.Symbol, "category": inst.Category})
	}
	return out
}

func defaultPages() []map[string]any {
	page := func(name, url string) map[string]any {
		return map[string]any{
			"name": name,
			"url":  url,
			"extractor": map[string]any{
				"kind":      fetcher.ExtractTable,
				"table_id":  "te-bond-table",
				"row_label": "10Y",
			},
		}
	}
	return []map[string]any{
		page("UK 10Y Gilt", "https://tradingeconomics.com/united-kingdom/government-bond-yield"),
		page("Germany 10Y Bund", "https://tradingeconomics.com/germany/government-bond-yield"),
	}
}
