package encode

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

var (
	errNilValue      = errors.New("value is nil")
	errNoSuchField   = errors.New("no such field")
	errUnexported    = errors.New("field is unexported")
	errNotAccessible = errors.New("value has no fields")
)

// Project reads the named field from obj. Structs (or pointers to them)
// are matched by Go field name, then case-insensitively, then by json tag;
// maps with string keys are indexed directly. Failures return nil and a
// *core.ProjectionError.
func Project(obj any, field string) (any, error) {
	v, err := project(reflect.ValueOf(obj), field)
	if err != nil {
		return nil, &core.ProjectionError{Property: field, Err: err}
	}
	return v, nil
}

func project(rv reflect.Value, field string) (any, error) {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil, errNilValue
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, errNilValue
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errNotAccessible
		}
		val := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, fmt.Errorf("%w: %s", errNoSuchField, field)
		}
		return val.Interface(), nil
	case reflect.Struct:
		sf, ok := lookupField(rv.Type(), field)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errNoSuchField, field)
		}
		if !sf.IsExported() {
			return nil, fmt.Errorf("%w: %s", errUnexported, sf.Name)
		}
		fv, err := rv.FieldByIndexErr(sf.Index)
		if err != nil {
			return nil, err
		}
		return fv.Interface(), nil
	}
	return nil, errNotAccessible
}

func lookupField(t reflect.Type, name string) (reflect.StructField, bool) {
	if sf, ok := t.FieldByName(name); ok {
		return sf, true
	}
	if sf, ok := t.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) }); ok {
		return sf, true
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if tag == name {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}
