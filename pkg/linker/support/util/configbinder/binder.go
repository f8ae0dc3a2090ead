// Package configbinder decodes loosely typed adapter sections of the configuration
// (map[string]interface{} parsed from YAML) into typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties decodes properties into target using the "yaml" struct tag.
// Weakly typed input is accepted, so "5432" binds to an int field and "true" to a bool.
func BindProperties(properties interface{}, target interface{}) error {
	if properties == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindNamed looks up name in sections and decodes it into target.
func BindNamed(sections map[string]interface{}, name string, target interface{}) error {
	raw, ok := sections[name]
	if !ok {
		return fmt.Errorf("configuration section '%s' not found", name)
	}
	return BindProperties(raw, target)
}
