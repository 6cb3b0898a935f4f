// Package common holds configuration, logging and process utilities.
//
// Configuration strings may reference entries in the key/value store with
// {key-name}. References are resolved after the TOML files are merged, so
// secrets such as IMAP passwords and API keys stay out of config files:
//
//	[imap]
//	password = "{imap-password}"
//
// Missing keys are left untouched and logged; they are not errors.
package common

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences substitutes every {key-name} found in kvMap.
// Resolved values are never logged since they are usually credentials.
func ReplaceKeyReferences(input string, kvMap map[string]string, logger arbor.ILogger) string {
	if input == "" || !keyRefPattern.MatchString(input) {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]
		if value, ok := kvMap[keyName]; ok {
			return value
		}
		logger.Warn().Str("key", keyName).Msg("Unresolved key reference - key not found in KV store")
		return match
	})
}

// ReplaceInStruct walks a struct pointer and resolves references in string
// fields, string slices, string maps, nested structs and struct pointers.
func ReplaceInStruct(v interface{}, kvMap map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("ReplaceInStruct requires a non-nil pointer, got %T", v)
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got pointer to %v", val.Kind())
	}
	replaceInValue(val, "", kvMap, logger)
	return nil
}

func replaceInValue(val reflect.Value, path string, kvMap map[string]string, logger arbor.ILogger) {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		name := typ.Field(i).Name
		if path != "" {
			name = path + "." + name
		}

		switch field.Kind() {
		case reflect.String:
			if replaced := ReplaceKeyReferences(field.String(), kvMap, logger); replaced != field.String() {
				field.SetString(replaced)
				logger.Debug().Str("field", name).Msg("Resolved key reference")
			}

		case reflect.Struct:
			replaceInValue(field, name, kvMap, logger)

		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				replaceInValue(field.Elem(), name, kvMap, logger)
			}

		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < field.Len(); j++ {
				elem := field.Index(j)
				if replaced := ReplaceKeyReferences(elem.String(), kvMap, logger); replaced != elem.String() {
					elem.SetString(replaced)
					logger.Debug().Str("field", name).Int("index", j).Msg("Resolved key reference")
				}
			}

		case reflect.Map:
			if field.IsNil() || field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for _, key := range field.MapKeys() {
				current := field.MapIndex(key).String()
				if replaced := ReplaceKeyReferences(current, kvMap, logger); replaced != current {
					field.SetMapIndex(key, reflect.ValueOf(replaced))
				}
			}
		}
	}
}
