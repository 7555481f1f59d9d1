package helper

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidateStructIsPopulated will check if any mandatory fields in cfg are missing.
// It uses struct tags to determine which fields are mandatory and the error text to fetch.
// The error text returned is just a list of the struct tags with key "errorTxt".
func ValidateStructIsPopulated(cfg interface{}) (err error) {
	if cfg == nil {
		return fmt.Errorf("nil value supplied for validation")
	}
	errs := make([]string, 0)
	GetStructErrorTxt4UnsetFields(cfg, &errs)
	if len(errs) > 0 {
		err = fmt.Errorf("please supply values for %v", strings.Join(errs, ", "))
	}
	return
}

// GetStructErrorTxt4UnsetFields will reflect over interface i and append to errTags the errorTxt tag of any
// exported field tagged mandatory:"yes" that holds its zero value.
// Nested structs and struct values in maps are inspected too. Mandatory slices and maps must be non-empty.
func GetStructErrorTxt4UnsetFields(i interface{}, errTags *[]string) {
	val := reflect.ValueOf(i)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for idx := 0; idx < val.NumField(); idx++ { // for each field in the struct...
		field := typ.Field(idx)
		if field.PkgPath != "" { // if the field is not exported...
			continue
		}
		f := val.Field(idx)
		mandatory := field.Tag.Get("mandatory") == "yes"
		switch f.Kind() {
		case reflect.Struct: // descend another level...
			if f.Type().PkgPath() == "time" { // time.Time is a value not a config struct.
				if mandatory && f.IsZero() {
					*errTags = append(*errTags, field.Tag.Get("errorTxt"))
				}
				continue
			}
			GetStructErrorTxt4UnsetFields(f.Interface(), errTags)
		case reflect.Map:
			if mandatory && f.Len() == 0 {
				*errTags = append(*errTags, field.Tag.Get("errorTxt"))
			}
			for _, k := range f.MapKeys() { // for each map value that is a struct...
				if v := f.MapIndex(k); v.Kind() == reflect.Struct {
					GetStructErrorTxt4UnsetFields(v.Interface(), errTags)
				}
			}
		case reflect.Slice:
			if mandatory && f.Len() == 0 {
				*errTags = append(*errTags, field.Tag.Get("errorTxt"))
			}
		default:
			if mandatory && f.IsZero() { // if the field is its zero value and it is mandatory...
				*errTags = append(*errTags, field.Tag.Get("errorTxt"))
			}
		}
	}
}
