package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"feedmaster/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Feed      FeedConfig      `yaml:"feed"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Server    ServerConfig    `yaml:"server"`
	Sources   []domain.Source `yaml:"sources"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// SetAddress overrides host and, when present, port from a "host[:port]" string.
func (d *DatabaseConfig) SetAddress(addr string) error {
	if addr == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// no port given
		d.Host = addr
		return nil
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid port in %q", addr)
	}
	d.Host = host
	d.Port = p
	return nil
}

// FeedConfig describes the output channel and the read-side caps.
type FeedConfig struct {
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	Link            string `yaml:"link"`
	Language        string `yaml:"language"`
	SelfLink        string `yaml:"self_link"`
	Image           string `yaml:"image"`
	Author          string `yaml:"author"`
	Filter          Filter `yaml:"filter"`
	File            string `yaml:"file"`
	MaxItemsPerFeed int    `yaml:"max_items_per_feed"`
	MaxItemsTotal   int    `yaml:"max_items_total"`
	MaxKeep         int    `yaml:"max_keep"`
}

// Filter drops fetched entries before they are stored.
type Filter struct {
	Title string `yaml:"title"`

	title *regexp.Regexp
}

// SkipTitle reports whether an entry with this title is filtered out.
// The pattern is compiled by Config.Validate; before that nothing is skipped.
func (f Filter) SkipTitle(title string) bool {
	return f.title != nil && f.title.MatchString(title)
}

type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	UserAgent   string        `yaml:"user_agent"`
}

type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config data, expanding environment references and applying defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	// set before decoding so that an explicit empty address disables the API
	cfg := Config{Server: ServerConfig{Address: ":8080"}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.DBName == "" {
		c.Database.DBName = "feed_master"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Path == "" {
		c.Database.Path = "feed.db"
	}
	if c.Feed.File == "" {
		c.Feed.File = "feed.xml"
	}
	if c.Feed.MaxItemsPerFeed == 0 {
		c.Feed.MaxItemsPerFeed = 5
	}
	if c.Feed.MaxItemsTotal == 0 {
		c.Feed.MaxItemsTotal = 100
	}
	if c.Feed.MaxKeep == 0 {
		c.Feed.MaxKeep = 5000
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 15 * time.Second
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = 1
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "feed-master"
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = 5 * time.Minute
	}
	if c.Schedule.Timeout == 0 {
		c.Schedule.Timeout = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported value %q", c.Database.Driver))
	}

	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("sources: at least one source is required"))
	}
	for i, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		}
		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: invalid url %q", i, src.URL))
		}
	}

	if c.Feed.MaxItemsPerFeed < 0 {
		errs = append(errs, errors.New("feed.max_items_per_feed: must be positive"))
	}
	if c.Feed.MaxItemsTotal < 0 {
		errs = append(errs, errors.New("feed.max_items_total: must be positive"))
	}
	if c.Fetch.Concurrency < 0 {
		errs = append(errs, errors.New("fetch.concurrency: must be positive"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout: must be positive, got %s", c.Fetch.Timeout))
	}
	if c.Schedule.Interval <= 0 {
		errs = append(errs, fmt.Errorf("schedule.interval: must be positive, got %s", c.Schedule.Interval))
	}
	if c.Schedule.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("schedule.timeout: must be positive, got %s", c.Schedule.Timeout))
	}

	c.Feed.Filter.title = nil
	if c.Feed.Filter.Title != "" {
		re, err := regexp.Compile(c.Feed.Filter.Title)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed.filter.title: %w", err))
		} else {
			c.Feed.Filter.title = re
		}
	}

	return errors.Join(errs...)
}
