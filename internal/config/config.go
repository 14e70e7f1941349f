// Package config loads nstructctl's options with cli > env > file
// precedence, adapted from the pack's own reflection-based TOML/pflag
// config loader.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every field's "env" tag to form the actual
// environment variable name consulted.
const EnvPrefix = "NSTRUCTCTL_"

// Load loads configuration into opts (a pointer to a struct whose fields
// carry "toml" and/or "env" tags) with precedence CLI args > env vars >
// TOML config file. If cmd is non-nil, flags explicitly set via CLI are
// never overwritten by file or env values.
func Load(opts any, cmd *cobra.Command, configPath string) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changedFlags := map[string]bool{}
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var file map[string]any
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("config: parse %s: %w", configPath, err)
			}
			for i := 0; i < v.NumField(); i++ {
				field := v.Field(i)
				ft := t.Field(i)
				if changedFlags[fieldNameToFlag(ft.Name)] {
					continue
				}
				if key := ft.Tag.Get("toml"); key != "" {
					if val, ok := file[key]; ok {
						setFieldValue(field, val)
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		ft := t.Field(i)
		if changedFlags[fieldNameToFlag(ft.Name)] {
			continue
		}
		if key := ft.Tag.Get("env"); key != "" {
			if val := os.Getenv(EnvPrefix + key); val != "" {
				setFieldValueFromString(field, val)
			}
		}
	}
	return nil
}

func fieldNameToFlag(name string) string {
	var out []rune
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

func setFieldValue(field reflect.Value, val any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := val.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := val.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := val.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	}
}

func setFieldValueFromString(field reflect.Value, val string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Bool:
		if b, err := strconv.ParseBool(val); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}
