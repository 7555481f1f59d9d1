package helper

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	om "github.com/cevaris/ordered_map"
)

// CsvToStringSliceTrimSpaces splits s on commas and trims spaces from each token.
// Empty tokens are dropped.
func CsvToStringSliceTrimSpaces(s string) []string {
	retval := make([]string, 0)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			retval = append(retval, t)
		}
	}
	return retval
}

// KeyValuePairsToMap converts a list like {"a=1", "b = x"} into a map.
// An error is returned for an item without "=" or with an empty key.
func KeyValuePairsToMap(pairs []string) (map[string]string, error) {
	retval := make(map[string]string, len(pairs))
	for _, p := range pairs {
		idx := strings.Index(p, "=")
		if idx < 1 { // if there is no key...
			return nil, fmt.Errorf("expected <key>=<value> but got %q", p)
		}
		retval[strings.TrimSpace(p[:idx])] = strings.TrimSpace(p[idx+1:])
	}
	return retval, nil
}

// OrderedMapKeys returns the string keys of o in insertion order.
func OrderedMapKeys(o *om.OrderedMap) []string {
	retval := make([]string, 0, o.Len())
	iter := o.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, fmt.Sprintf("%v", kv.Key))
	}
	return retval
}

// OrderedMapValuesToStringSlice returns the values of o in insertion order, formatted as strings.
func OrderedMapValuesToStringSlice(o *om.OrderedMap) []string {
	retval := make([]string, 0, o.Len())
	iter := o.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, fmt.Sprintf("%v", kv.Value))
	}
	return retval
}

// StringSliceToOrderedMap returns an ordered map where each key and value is the trimmed string.
func StringSliceToOrderedMap(s []string) *om.OrderedMap {
	o := om.NewOrderedMap()
	for _, v := range s {
		v = strings.TrimSpace(v)
		o.Set(v, v)
	}
	return o
}

// SortedKeys returns the keys of m sorted ascending so that output built from maps is stable.
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it can regexp (case insensitive) match "true".
// It returns true if there's a match else false.
func GetTrueFalseStringAsBool(s string) bool {
	re := regexp.MustCompile("(?i)^true$")
	return re.MatchString(strings.TrimSpace(s))
}

// SplitRight splits s at the last occurrence of c.
// If c is not found it returns s, "".
func SplitRight(s string, c string) (string, string) {
	i := strings.LastIndex(s, c)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+len(c):]
}
