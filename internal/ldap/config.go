package ldap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/ini.v1"
)

var (
	ErrConfigNotFound        = errors.New("configuration file not found or not readable")
	ErrUnsupportedConfigType = errors.New("unsupported config file type, must be 'json' or 'ini'")
	ErrSectionNotFound       = errors.New("configuration section does not exist")
	ErrMissingConfigKey      = errors.New("configuration is missing a mandatory key")
)

// MandatoryConfigKeys must be present in every configuration file section.
var MandatoryConfigKeys = []string{"HOST", "USER", "PWD", "DN"}

// Config holds everything needed to open a Session.
type Config struct {
	Name        string        // Label; defaults to the file section name
	Host        string        // Host name or ldap[s]:// URL
	User        string        // Bind DN
	Password    string        `json:"-"`
	BaseDN      string        // Root of searches; derived from the bound identity when empty
	Timeout     time.Duration `default:"5s"`
	Scope       string        `default:"subtree"`
	ResultLimit int           // 0 means unlimited
}

// NewConfig returns a Config with defaults applied.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields a connection cannot do without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration cannot be nil")
	}
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host cannot be empty")
	}
	if strings.TrimSpace(c.User) == "" {
		return errors.New("user cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ResultLimit < 0 {
		return fmt.Errorf("result limit cannot be negative, got %d", c.ResultLimit)
	}
	if _, err := ParseScope(c.Scope); err != nil {
		return err
	}
	return nil
}

// LoadConfigFile reads one section of an .ini or .json configuration file.
//
// Keys HOST, USER, PWD and DN are mandatory. TIMEOUT (seconds, default 5),
// NAME (default: the section name), SCOPE and RESULT_LIMIT are optional.
// An empty section reads the top level of the file.
func LoadConfigFile(path, section string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("provided path %s is not a file", path)
	}

	var raw map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini":
		raw, err = readINISection(path, section)
	case ".json":
		raw, err = readJSONSection(path, section)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigType, path)
	}
	if err != nil {
		return nil, err
	}

	return configFromKeys(raw, section)
}

func readINISection(path, section string) (map[string]string, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ini file %s: %w", path, err)
	}

	name := section
	if name == "" {
		name = ini.DefaultSection
	}

	sec, err := file.GetSection(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSectionNotFound, section)
	}
	return sec.KeysHash(), nil
}

func readJSONSection(path, section string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config file %s is not valid JSON: %w", path, err)
	}

	if section != "" {
		nested, ok := doc[section].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSectionNotFound, section)
		}
		doc = nested
	}

	raw := make(map[string]string, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case string:
			raw[key] = v
		case float64:
			raw[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			raw[key] = strconv.FormatBool(v)
		}
	}
	return raw, nil
}

func configFromKeys(raw map[string]string, section string) (*Config, error) {
	for _, key := range MandatoryConfigKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: %s (required keys: %s)", ErrMissingConfigKey, key, strings.Join(MandatoryConfigKeys, ", "))
		}
	}

	cfg, err := NewConfig()
	if err != nil {
		return nil, err
	}

	cfg.Host = raw["HOST"]
	cfg.User = raw["USER"]
	cfg.Password = raw["PWD"]
	cfg.BaseDN = raw["DN"]
	cfg.Name = section

	if name, ok := raw["NAME"]; ok {
		cfg.Name = name
	}

	if timeout, ok := raw["TIMEOUT"]; ok {
		seconds, err := strconv.Atoi(strings.TrimSpace(timeout))
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT %q: %w", timeout, err)
		}
		cfg.Timeout = time.Duration(seconds) * time.Second
	}

	if scope, ok := raw["SCOPE"]; ok {
		cfg.Scope = scope
	}

	if limit, ok := raw["RESULT_LIMIT"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(limit))
		if err != nil {
			return nil, fmt.Errorf("invalid RESULT_LIMIT %q: %w", limit, err)
		}
		cfg.ResultLimit = n
	}

	return cfg, nil
}
