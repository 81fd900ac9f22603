// Package config provides the per-mode scan configuration. The three
// scan modes trade coverage for runtime: discovery maps the surface
// quickly, standard adds the full detector set, deep widens budgets
// and deadlines.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode names a scan configuration preset.
type Mode string

const (
	ModeDiscovery Mode = "discovery"
	ModeStandard  Mode = "standard"
	ModeDeep      Mode = "deep"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDiscovery, ModeStandard, ModeDeep:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown scan mode %q (want discovery, standard, or deep)", s)
}

// Config holds every tunable of a scan. Values are plain so the
// crawler, fetcher, and orchestrator can each take what they need
// without import cycles.
type Config struct {
	// Crawl limits.
	MaxPages         int `yaml:"max_pages"`
	CrawlConcurrency int `yaml:"crawl_concurrency"`

	// Detector execution.
	DetectorConcurrency int `yaml:"detector_concurrency"`
	// SamplePages bounds how many crawled pages passive detectors
	// inspect beyond the root.
	SamplePages int `yaml:"sample_pages"`
	// MaxFormsProbed bounds how many forms the active detectors
	// submit probes against.
	MaxFormsProbed int `yaml:"max_forms_probed"`

	// Timeouts.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ScanDeadline   time.Duration `yaml:"scan_deadline"`
	// DetectorGrace is how long after the deadline still-running
	// detectors may deliver before their partials are dropped.
	DetectorGrace time.Duration `yaml:"detector_grace"`

	// Fetch bounds.
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	MaxRedirects       int           `yaml:"max_redirects"`
	MinRequestInterval time.Duration `yaml:"min_request_interval"`

	// AllowPrivateTargets relaxes target validation to loopback and
	// RFC1918 hosts. Off in every preset.
	AllowPrivateTargets bool `yaml:"allow_private_targets"`
}

// ForMode returns the preset for a scan mode. Discovery stays in the
// tens of pages with a short deadline; deep reaches the low hundreds.
func ForMode(mode Mode) *Config {
	switch mode {
	case ModeDiscovery:
		return &Config{
			MaxPages:            25,
			CrawlConcurrency:    4,
			DetectorConcurrency: 4,
			SamplePages:         3,
			MaxFormsProbed:      3,
			RequestTimeout:      5 * time.Second,
			ScanDeadline:        45 * time.Second,
			DetectorGrace:       2 * time.Second,
			MaxBodyBytes:        256 << 10,
			MaxRedirects:        5,
			MinRequestInterval:  100 * time.Millisecond,
		}
	case ModeDeep:
		return &Config{
			MaxPages:            200,
			CrawlConcurrency:    10,
			DetectorConcurrency: 8,
			SamplePages:         10,
			MaxFormsProbed:      10,
			RequestTimeout:      15 * time.Second,
			ScanDeadline:        10 * time.Minute,
			DetectorGrace:       2 * time.Second,
			MaxBodyBytes:        1 << 20,
			MaxRedirects:        8,
			MinRequestInterval:  50 * time.Millisecond,
		}
	default: // standard
		return &Config{
			MaxPages:            75,
			CrawlConcurrency:    8,
			DetectorConcurrency: 6,
			SamplePages:         5,
			MaxFormsProbed:      5,
			RequestTimeout:      10 * time.Second,
			ScanDeadline:        3 * time.Minute,
			DetectorGrace:       2 * time.Second,
			MaxBodyBytes:        1 << 20,
			MaxRedirects:        5,
			MinRequestInterval:  75 * time.Millisecond,
		}
	}
}

// Load reads YAML overrides on top of the preset for the given mode.
// Only fields present in the file replace preset values.
func Load(path string, mode Mode) (*Config, error) {
	cfg := ForMode(mode)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes overrides, accepting durations in Go syntax
// ("30s", "2m") since YAML has no duration scalar.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type overrides struct {
		MaxPages            *int    `yaml:"max_pages"`
		CrawlConcurrency    *int    `yaml:"crawl_concurrency"`
		DetectorConcurrency *int    `yaml:"detector_concurrency"`
		SamplePages         *int    `yaml:"sample_pages"`
		MaxFormsProbed      *int    `yaml:"max_forms_probed"`
		RequestTimeout      *string `yaml:"request_timeout"`
		ScanDeadline        *string `yaml:"scan_deadline"`
		DetectorGrace       *string `yaml:"detector_grace"`
		MaxBodyBytes        *int64  `yaml:"max_body_bytes"`
		MaxRedirects        *int    `yaml:"max_redirects"`
		MinRequestInterval  *string `yaml:"min_request_interval"`
		AllowPrivateTargets *bool   `yaml:"allow_private_targets"`
	}
	var o overrides
	if err := node.Decode(&o); err != nil {
		return err
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setDur := func(dst *time.Duration, src *string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", *src, err)
		}
		*dst = d
		return nil
	}

	setInt(&c.MaxPages, o.MaxPages)
	setInt(&c.CrawlConcurrency, o.CrawlConcurrency)
	setInt(&c.DetectorConcurrency, o.DetectorConcurrency)
	setInt(&c.SamplePages, o.SamplePages)
	setInt(&c.MaxFormsProbed, o.MaxFormsProbed)
	setInt(&c.MaxRedirects, o.MaxRedirects)
	if o.MaxBodyBytes != nil {
		c.MaxBodyBytes = *o.MaxBodyBytes
	}
	if o.AllowPrivateTargets != nil {
		c.AllowPrivateTargets = *o.AllowPrivateTargets
	}
	for _, d := range []struct {
		dst *time.Duration
		src *string
	}{
		{&c.RequestTimeout, o.RequestTimeout},
		{&c.ScanDeadline, o.ScanDeadline},
		{&c.DetectorGrace, o.DetectorGrace},
		{&c.MinRequestInterval, o.MinRequestInterval},
	} {
		if err := setDur(d.dst, d.src); err != nil {
			return err
		}
	}
	return nil
}
