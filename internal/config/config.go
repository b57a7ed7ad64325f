package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/lensnode/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag. The bare tag name is read as a fallback.
const EnvPrefix = "LENSNODE_"

// LoadConfig fills opts with precedence: CLI flags > env vars > config file.
// opts must be a pointer to a flat struct; the field named Config holds the file path.
// If cmd is provided, flags explicitly set via CLI are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := changedFlags(cmd)
	skip := func(field reflect.StructField) bool {
		return changed[flagName(field)]
	}

	if path := configPath(v); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
			}
			for i := 0; i < v.NumField(); i++ {
				field := t.Field(i)
				if skip(field) {
					continue
				}
				if tomlPath := field.Tag.Get("toml"); tomlPath != "" {
					if value := getNestedValue(doc, tomlPath); value != nil {
						setFieldValue(v.Field(i), value)
					}
				}
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if skip(field) {
			continue
		}
		if envKey := field.Tag.Get("env"); envKey != "" {
			if value, ok := lookupEnv(envKey); ok {
				setFieldValueFromString(v.Field(i), value)
			}
		}
	}

	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

func configPath(v reflect.Value) string {
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// lookupEnv reads LENSNODE_<key>, then <key>. Empty values count as unset.
func lookupEnv(key string) (string, bool) {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value, true
	}
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	return "", false
}

// fieldNameToFlag converts a struct field name to the kebab-case flag name humacli derives.
// Example: "LoggingLevel" -> "logging-level", "APIToken" -> "api-token".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var result []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				result = append(result, '-')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

func flagName(field reflect.StructField) string {
	if name := field.Tag.Get("name"); name != "" {
		return name
	}
	return fieldNameToFlag(field.Name)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue sets a field from a decoded TOML value. Mismatched types are ignored.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		switch s := value.(type) {
		case string:
			field.SetString(s)
		case int64:
			field.SetString(strconv.FormatInt(s, 10))
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		if arr, ok := value.([]any); ok {
			slice := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, strOk := item.(string); strOk {
					slice = append(slice, s)
				}
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
}

// setFieldValueFromString sets a field from an env var value.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			slice := make([]string, len(parts))
			for i, part := range parts {
				slice[i] = strings.TrimSpace(part)
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
}

// LoadLoggingConfig reads the [logging] table of a TOML file:
//
//	[logging]
//	level = "info"
//	format = "text"
//	buffer_size = 1000
//
//	[logging.modules]
//	booth = "debug"
//
// Flat module keys directly under [logging] are accepted too. Defaults are
// returned when the file is missing or invalid.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			if s, ok := value.(string); ok {
				cfg.Level = s
			}
		case "format":
			if s, ok := value.(string); ok {
				cfg.Format = s
			}
		case "buffer_size":
			if n, ok := value.(int64); ok {
				cfg.BufferSize = int(n)
			}
		case "modules":
			if modules, ok := value.(map[string]any); ok {
				for module, level := range modules {
					if s, strOk := level.(string); strOk {
						cfg.Modules[module] = s
					}
				}
			}
		default:
			if s, ok := value.(string); ok {
				cfg.Modules[key] = s
			}
		}
	}

	return cfg
}
