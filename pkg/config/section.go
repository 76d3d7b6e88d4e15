package config

import (
	"strconv"
	"strings"
)

// Section provides typed access to one config section.
type Section struct {
	name    string
	options map[string]string
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{name: name, options: opts}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// HasOption checks whether an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// Get returns a string option. If the option is absent and a fallback is
// given, the fallback is returned; otherwise an error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", errMissingOption(s.name, option)
}

// GetInt returns an integer option.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errInvalidValue(s.name, option, v, "integer")
		}
		return i, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errMissingOption(s.name, option)
}

// GetFloat returns a float option.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errInvalidValue(s.name, option, v, "float")
		}
		return f, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errMissingOption(s.name, option)
}

// GetBool returns a boolean option. Accepts 1/0, true/false, on/off, yes/no.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no":
			return false, nil
		default:
			return false, errInvalidValue(s.name, option, v, "boolean")
		}
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return false, errMissingOption(s.name, option)
}

// GetFloatMin returns a float option enforcing a lower bound.
func (s *Section) GetFloatMin(option string, min float64, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v < min {
		return 0, NewError(s.name, option,
			"must have minimum of "+strconv.FormatFloat(min, 'g', -1, 64))
	}
	return v, nil
}
