// Package config parses the host's INI-style configuration files.
// Sections are written as [name] headers with "key: value" or
// "key = value" options, '#' comments and case-insensitive keys.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Error is a typed configuration error carrying section/option context.
type Error struct {
	Section string
	Option  string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Option != "":
		return fmt.Sprintf("config: [%s] option '%s': %s", e.Section, e.Option, e.Message)
	case e.Section != "":
		return fmt.Sprintf("config: [%s]: %s", e.Section, e.Message)
	default:
		return "config: " + e.Message
	}
}

// NewError creates a configuration error.
func NewError(section, option, message string) *Error {
	return &Error{Section: section, Option: option, Message: message}
}

func errMissingSection(section string) *Error {
	return NewError(section, "", "section not found")
}

func errMissingOption(section, option string) *Error {
	return NewError(section, option, "option not found")
}

func errInvalidValue(section, option, value, want string) *Error {
	return NewError(section, option, fmt.Sprintf("invalid value '%s' (expected %s)", value, want))
}

// Config provides access to a parsed configuration file.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
}

// New creates an empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	c := New()
	if err := c.parse(bufio.NewScanner(f)); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// LoadString parses a configuration from a string.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(bufio.NewScanner(strings.NewReader(data))); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parse(scanner *bufio.Scanner) error {
	var section string
	var options map[string]string
	lineNum := 0

	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			section = strings.TrimSpace(line[1 : len(line)-1])
			if section == "" {
				return fmt.Errorf("empty section header at line %d", lineNum)
			}
			options = make(map[string]string)
			continue
		}

		// Options before the first section header are invalid input but
		// tolerated, matching the host's parser.
		if section == "" {
			continue
		}

		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			kv = strings.SplitN(line, "=", 2)
		}
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		options[key] = strings.TrimSpace(kv[1])
	}
	flush()

	return scanner.Err()
}

func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// Section returns a section by name.
func (c *Config) Section(name string) (*Section, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sec, ok := c.sections[name]
	if !ok {
		return nil, errMissingSection(name)
	}
	return sec, nil
}

// SectionOptional returns a section if present, else nil.
func (c *Config) SectionOptional(name string) *Section {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sections[name]
}

// HasSection checks whether a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// SectionNames returns all section names in file order.
func (c *Config) SectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}
