//go:build queryslim

package state

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// splitPath turns "systems.s.disks.main.swaps.[0].label" or "swaps[0]" into
// its path elements.
func splitPath(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ".") {
		for p != "" {
			open := strings.Index(p, "[")
			switch {
			case open > 0:
				parts = append(parts, p[:open])
				p = p[open:]
			case open == 0:
				end := strings.Index(p, "]")
				if end < 0 {
					parts = append(parts, p)
					p = ""
					continue
				}
				parts = append(parts, p[1:end])
				p = p[end+1:]
			default:
				parts = append(parts, p)
				p = ""
			}
		}
	}
	return parts
}

// fieldName returns the serialized name of a struct field.
func fieldName(f reflect.StructField) string {
	name := strings.Split(f.Tag.Get("json"), ",")[0]
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// Query walks the build state along a dotted path. It only supports plain
// field, key and index lookups, not the full jq language.
func (c Context) Query(s string) (string, error) {
	v := reflect.ValueOf(c)
	for _, part := range splitPath(s) {
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return "", fmt.Errorf("nil value before '%s'", part)
			}
			v = v.Elem()
		}
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= v.Len() {
				return "", fmt.Errorf("invalid slice index '%s'", part)
			}
			v = v.Index(idx)
		case reflect.Struct:
			t := v.Type()
			found := false
			for i := 0; i < t.NumField(); i++ {
				f := t.Field(i)
				if !f.IsExported() {
					continue
				}
				if strings.EqualFold(fieldName(f), part) || strings.EqualFold(f.Name, part) {
					v = v.Field(i)
					found = true
					break
				}
			}
			if !found {
				return "", fmt.Errorf("field '%s' not found", part)
			}
		case reflect.Map:
			v = v.MapIndex(reflect.ValueOf(part))
			if !v.IsValid() {
				return "", fmt.Errorf("map key '%s' not found", part)
			}
		default:
			return "", fmt.Errorf("cannot traverse into %s", v.Kind())
		}
	}
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() == reflect.String {
		return v.String(), nil
	}
	return fmt.Sprint(v.Interface()), nil
}
