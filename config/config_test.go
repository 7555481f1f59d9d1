package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/relloyd/forklift/errs"
	"github.com/relloyd/forklift/rdbms/shared"
)

func TestFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	f := NewConfigFileWithDir(dir, "connections.yaml")

	t.Log("Test 1 - a missing file has no keys")
	keys, err := f.GetAllKeys()
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys; got %v, %v", keys, err)
	}
	var s string
	if err = f.Get("nope", &s); !errors.As(err, &KeyNotFoundError{}) {
		t.Fatalf("expected a missing key; got %v", err)
	}

	t.Log("Test 2 - connections are saved and read back by a new file")
	conn := shared.ConnectionDetails{Type: "postgres", LogicalName: "warehouse", Data: map[string]string{"dsn": "postgres://u:p@h/db"}}
	if err = f.AddConnection(conn); err != nil {
		t.Fatal(err)
	}
	if err = f.AddConnection(shared.ConnectionDetails{Type: "postgres"}); err == nil {
		t.Fatal("expected an incomplete connection to be rejected")
	}
	g := NewConfigFileWithDir(dir, "connections.yaml")
	got, err := g.LoadConnection("warehouse")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, conn) {
		t.Fatalf("expected %v; got %v", conn, got)
	}
	if info, _ := os.Stat(g.FullPath); info.Mode().Perm() != 0600 {
		t.Fatalf("expected the file to be private; got %v", info.Mode())
	}

	t.Log("Test 3 - delete")
	if err = g.Delete("warehouse"); err != nil {
		t.Fatal(err)
	}
	if err = g.Delete("warehouse"); err == nil {
		t.Fatal("expected a second delete to fail")
	}
	if _, err = g.LoadConnection("warehouse"); err == nil {
		t.Fatal("expected the connection to be gone")
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	data := "workerPoolSize: 8\nsourceConnections: a, b\napiBaseUrl: http://x\npartitionLock: true\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	f := NewConfigFileWithDir(dir, "config.yaml")

	t.Log("Test 1 - the file overlays the defaults")
	s, err := LoadSettings(f)
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkerPoolSize != 8 || s.RetryCount != DefaultSettings().RetryCount || !s.PartitionLock {
		t.Fatalf("unexpected settings %+v", s)
	}
	if !reflect.DeepEqual(s.Sources(), []string{"a", "b"}) {
		t.Fatalf("unexpected sources %v", s.Sources())
	}

	t.Log("Test 2 - the environment overlays the file")
	t.Setenv("FL_WORKER_POOL_SIZE", "2")
	t.Setenv("FL_API_BASE_URL", "http://y")
	s, err = LoadSettings(f)
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkerPoolSize != 2 || s.APIBaseURL != "http://y" {
		t.Fatalf("unexpected settings %+v", s)
	}

	t.Log("Test 3 - bad values are invalid arguments")
	t.Setenv("FL_WORKER_POOL_SIZE", "0")
	if _, err = LoadSettings(nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument; got %v", err)
	}
	t.Setenv("FL_WORKER_POOL_SIZE", "many")
	if _, err = LoadSettings(nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument; got %v", err)
	}
}

func TestSettingEnvVarName(t *testing.T) {
	cases := map[string]string{
		"workerPoolSize": "FL_WORKER_POOL_SIZE",
		"apiBaseUrl":     "FL_API_BASE_URL",
		"s3Bucket":       "FL_S3_BUCKET",
		"logLevel":       "FL_LOG_LEVEL",
	}
	for in, expected := range cases {
		if got := SettingEnvVarName(in); got != expected {
			t.Fatalf("%v: expected %v; got %v", in, expected, got)
		}
	}
}

func TestEnvConnections(t *testing.T) {
	e := &EnvConnections{Names: []string{"wh", "src"}}
	t.Setenv("FL_WH_DSN", "postgres://u:p@localhost/db")
	t.Setenv("FL_SRC_DSN", "netezza://u/p@//host:5480/db")

	got, err := e.LoadConnection("wh")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "postgres" || got.LogicalName != "wh" || got.Dsn() != "postgres://u:p@localhost/db" {
		t.Fatalf("unexpected connection %+v", got)
	}
	if got, err = e.LoadConnection("src"); err != nil || got.Type != "netezza" {
		t.Fatalf("expected a netezza connection; got %+v, %v", got, err)
	}
	if _, err = e.LoadConnection("missing"); err == nil {
		t.Fatal("expected a missing variable to fail")
	}
	keys, _ := e.GetAllKeys()
	if !reflect.DeepEqual(keys, []string{"src", "wh"}) {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestIsSettingKey(t *testing.T) {
	if !IsSettingKey("workerPoolSize") || !IsSettingKey("s3Prefix") {
		t.Fatal("expected known keys to be settings")
	}
	if IsSettingKey("WorkerPoolSize") || IsSettingKey("") {
		t.Fatal("expected unknown keys to be rejected")
	}
	if len(SettingKeys()) != reflect.TypeOf(Settings{}).NumField() {
		t.Fatalf("unexpected keys %v", SettingKeys())
	}
}
