package env

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Marshal renders config structs into .env content using the same `env`
// struct tags the parser reads. A variable set in the environment wins,
// even at its zero value; otherwise the field value is used, falling back
// to the `envDefault` tag so the output is a complete, editable starter
// file.
func Marshal(cfgs ...any) (string, error) {
	var b strings.Builder

	for _, cfg := range cfgs {
		v := reflect.ValueOf(cfg)
		if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
			return "", fmt.Errorf("env: expected pointer to struct, got %T", cfg)
		}
		v = v.Elem()
		t := v.Type()

		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			key, _, _ := strings.Cut(field.Tag.Get("env"), ",")
			if key == "" || !field.IsExported() {
				continue
			}

			val, set := os.LookupEnv(key)
			if !set {
				val = formatValue(v.Field(i))
			}
			if val == "" && !set {
				val = field.Tag.Get("envDefault")
			}
			if val == "" {
				continue
			}
			b.WriteString(key)
			b.WriteString("=")
			b.WriteString(val)
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// formatValue covers the field kinds the config structs actually use.
func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int64:
		if v.Int() == 0 {
			return ""
		}
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Bool:
		if !v.Bool() {
			return ""
		}
		return "true"
	default:
		return ""
	}
}
