package helper

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

type testNested struct {
	Dsn string `errorTxt:"nested dsn" mandatory:"yes"`
}

type testConfig struct {
	Name     string            `errorTxt:"name" mandatory:"yes"`
	PoolSize int               `errorTxt:"pool size" mandatory:"yes"`
	Comment  string            `errorTxt:"comment" mandatory:"no"`
	Now      time.Time         `errorTxt:"now" mandatory:"yes"`
	Keys     []string          `errorTxt:"keys" mandatory:"yes"`
	Params   map[string]string `errorTxt:"params" mandatory:"no"`
	Nested   testNested
}

func TestValidateStructIsPopulated(t *testing.T) {
	t.Log("Test 1 - missing mandatory fields are listed")
	err := ValidateStructIsPopulated(&testConfig{})
	if err == nil {
		t.Fatal("expected an error for an empty config")
	}
	for _, txt := range []string{"name", "pool size", "now", "keys", "nested dsn"} {
		if !strings.Contains(err.Error(), txt) {
			t.Fatalf("expected error to mention %q, got %v", txt, err)
		}
	}
	if strings.Contains(err.Error(), "comment") {
		t.Fatalf("optional field reported as missing: %v", err)
	}

	t.Log("Test 2 - a populated struct is valid")
	cfg := testConfig{Name: "a", PoolSize: 1, Now: time.Now(), Keys: []string{"x"}, Nested: testNested{Dsn: "d"}}
	if err := ValidateStructIsPopulated(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Log("Test 3 - nil input")
	if err := ValidateStructIsPopulated(nil); err == nil {
		t.Fatal("expected error for nil input")
	}
}

func TestKeyValuePairsToMap(t *testing.T) {
	t.Log("Test 1 - parse pairs")
	m, err := KeyValuePairsToMap([]string{"a=1", " b = x ", "c="})
	if err != nil {
		t.Fatal(err)
	}
	expected := map[string]string{"a": "1", "b": "x", "c": ""}
	if !reflect.DeepEqual(m, expected) {
		t.Fatalf("expected %v, got %v", expected, m)
	}

	t.Log("Test 2 - reject a pair without a key")
	if _, err := KeyValuePairsToMap([]string{"=1"}); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := KeyValuePairsToMap([]string{"novalue"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestOrderedMapHelpers(t *testing.T) {
	o := StringSliceToOrderedMap([]string{" b", "a ", "c"})
	if got := OrderedMapKeys(o); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Fatalf("unexpected keys order %v", got)
	}
	if got := OrderedMapValuesToStringSlice(o); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Fatalf("unexpected values order %v", got)
	}
	if got := CsvToStringSliceTrimSpaces(" x, ,y "); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("unexpected csv split %v", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Log("Test 1 - env var naming")
	if got := EnvVarName("worker-pool-size"); got != "FL_WORKER_POOL_SIZE" {
		t.Fatalf("unexpected env var name %q", got)
	}
	if got := GetDsnEnvVarName(" warehouse "); got != "FL_WAREHOUSE_DSN" {
		t.Fatalf("unexpected dsn env var name %q", got)
	}

	t.Log("Test 2 - defaults apply when unset")
	_ = os.Unsetenv("FL_TEST_HELPER_VALUE")
	if got := ReadValueFromEnvWithDefault("FL_TEST_HELPER_VALUE", "dflt"); got != "dflt" {
		t.Fatalf("expected default, got %q", got)
	}
	if _, err := GetEnvVar("FL_TEST_HELPER_VALUE", true); err == nil {
		t.Fatal("expected an error for a mandatory missing variable")
	}

	t.Log("Test 3 - values are read when set")
	_ = os.Setenv("FL_TEST_HELPER_VALUE", "set")
	defer os.Unsetenv("FL_TEST_HELPER_VALUE")
	if got := ReadValueFromEnvWithDefault("FL_TEST_HELPER_VALUE", "dflt"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}
