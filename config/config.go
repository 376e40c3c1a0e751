// Package config reads JSON configuration files and decodes loosely typed attribute maps into
// typed configs.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Validator is implemented by configs that can check themselves. path locates the config in the
// file, for error messages.
type Validator interface {
	Validate(path string) error
}

// Read reads a config of type T from the given file. Environment variable references such as
// ${I2C_BUS} are expanded before the file is parsed.
func Read[T any](filePath string) (T, error) {
	var out T
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return out, err
	}
	return FromReader[T](filePath, bytes.NewReader(buf))
}

// FromReader reads a config of type T from r and validates it. originalPath names where the
// reader came from, for error messages.
func FromReader[T any](originalPath string, r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, errors.Wrapf(err, "failed to decode config from %q", originalPath)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(""); err != nil {
			return out, errors.Wrapf(err, "invalid config in %q", originalPath)
		}
	}
	return out, nil
}

// AttributeMap is a loosely typed set of attributes, as found in a JSON object.
type AttributeMap map[string]interface{}

// Has reports whether name is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// TransformAttributeMap uses an attribute map to transform attributes to the prescribed format.
// Attribute names are matched against json tags. Attributes the target has no field for are
// collected into its Attributes field, if it has a string keyed map by that name.
func TransformAttributeMap[T any](attributes AttributeMap) (T, error) {
	var out T

	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT == nil {
		// nothing to transform
		return out, nil
	}
	if toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	if attributes.Has("attributes") || len(md.Unused) == 0 {
		return out, nil
	}
	// set as many unused attributes as possible
	toV := reflect.ValueOf(forResult).Elem()
	if attrsV := toV.FieldByName("Attributes"); attrsV.IsValid() &&
		attrsV.Kind() == reflect.Map &&
		attrsV.Type().Key().Kind() == reflect.String {
		if attrsV.IsNil() {
			attrsV.Set(reflect.MakeMap(attrsV.Type()))
		}
		mapValueType := attrsV.Type().Elem()
		for _, key := range md.Unused {
			val := attributes[key]
			valV := reflect.ValueOf(val)
			if valV.IsValid() && valV.Type().AssignableTo(mapValueType) {
				attrsV.SetMapIndex(reflect.ValueOf(key), valV)
			}
		}
	}
	return out, nil
}
