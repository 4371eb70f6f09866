// Package config loads the application manifest and exposes it as a flat,
// read-only key space ("build.env", "webview.root", ...).
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is an immutable configuration snapshot.
type Config struct {
	values map[string]string
	lists  map[string][]string
}

// Load reads and parses a TOML manifest.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(b)
}

// Parse flattens a TOML document. Nested tables become dotted keys, arrays
// become list values and every scalar is rendered as a string.
func Parse(data []byte) (*Config, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	c := &Config{values: map[string]string{}, lists: map[string][]string{}}
	c.flatten("", doc)
	return c, nil
}

// FromMap builds a snapshot from flat keys. List values are read from
// whitespace-separated strings.
func FromMap(m map[string]string) *Config {
	c := &Config{values: make(map[string]string, len(m)), lists: map[string][]string{}}
	for k, v := range m {
		c.values[k] = v
	}
	return c
}

func (c *Config) flatten(prefix string, node map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := v.(type) {
		case map[string]any:
			c.flatten(key, v)
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, scalar(item))
			}
			c.lists[key] = items
			c.values[key] = strings.Join(items, " ")
		default:
			c.values[key] = scalar(v)
		}
	}
}

func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Get returns the value for key, or "" when unset.
func (c *Config) Get(key string) string {
	if c == nil {
		return ""
	}
	return c.values[key]
}

// List returns the list value for key. Scalar values are split on
// whitespace.
func (c *Config) List(key string) []string {
	if c == nil {
		return nil
	}
	if l, ok := c.lists[key]; ok {
		return append([]string(nil), l...)
	}
	return strings.Fields(c.values[key])
}

// Keys returns every key in sorted order.
func (c *Config) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Has(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func (OSEnv) Get(key string) string {
	return os.Getenv(key)
}

// MapEnv is a fixed environment.
type MapEnv map[string]string

func (m MapEnv) Has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m MapEnv) Get(key string) string {
	return m[key]
}
