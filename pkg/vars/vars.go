// Package vars provides durable key/value storage for measurement state.
// Values survive host restarts in a small [Variables] file. Storage
// errors are logged and reported but never abort a calibration run:
// results are still presented to the operator when persistence fails.
package vars

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"auto-offset-go/pkg/log"
)

// Store is a file-backed variable store.
type Store struct {
	mu       sync.RWMutex
	filename string
	values   map[string]any
	lg       *log.Logger
}

// Open loads a store from the given file, creating it when missing.
func Open(filename string, lg *log.Logger) (*Store, error) {
	if filename == "" {
		return nil, fmt.Errorf("vars: filename is required")
	}
	if strings.HasPrefix(filename, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			filename = home + filename[1:]
		}
	}

	s := &Store{
		filename: filename,
		values:   make(map[string]any),
		lg:       lg,
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		f, err := os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("vars: unable to create '%s': %w", filename, err)
		}
		f.Close()
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	lg.Debugf("loaded %d variables from '%s'", len(s.values), filename)
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vars: unable to open file: %w", err)
	}
	defer f.Close()

	values := make(map[string]any)
	inSection := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "[Variables]" {
			inSection = true
			continue
		}
		if strings.HasPrefix(line, "[") {
			inSection = false
			continue
		}
		if !inSection || !strings.Contains(line, " = ") {
			continue
		}
		parts := strings.SplitN(line, " = ", 2)
		name := strings.TrimSpace(parts[0])
		values[name] = parseValue(strings.TrimSpace(parts[1]))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("vars: error reading file: %w", err)
	}

	s.values = values
	return nil
}

func parseValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	return raw
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + val + "'"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int, int32, int64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("'%v'", val)
	}
}

// Set stores a value and rewrites the backing file. A storage failure is
// logged and returned, but callers are expected to continue the run.
func (s *Store) Set(name string, value any) error {
	if strings.ToLower(name) != name {
		return fmt.Errorf("vars: variable name must be lower case: '%s'", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]any, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	next[name] = value

	if err := s.write(next); err != nil {
		s.lg.Warnf("could not save variable '%s': %v", name, err)
		return err
	}
	s.values = next
	return nil
}

func (s *Store) write(values map[string]any) error {
	f, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("vars: unable to write '%s': %w", s.filename, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "[Variables]")
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s = %s\n", name, formatValue(values[name]))
	}
	return w.Flush()
}

// GetFloat returns a float variable, defaulting to 0.0 when absent.
// Integer-stored values are widened.
func (s *Store) GetFloat(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0.0
	}
}

// GetInt returns an integer variable, defaulting to 0 when absent.
func (s *Store) GetInt(name string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[name].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// All returns a copy of every stored variable.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
