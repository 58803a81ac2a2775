package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

// keySecret mimics kms.Secret: a named string type with a redacted
// String() method. Verifies that setField works for named string types
// without importing the kms package.
type keySecret string

func (s keySecret) String() string { return "[REDACTED]" }
func (s keySecret) Value() string  { return string(s) }

type basicConfig struct {
	Host    string        `env:"HOST" envDefault:"localhost" yaml:"host" json:"host"`
	Port    int           `env:"PORT" envDefault:"8080" yaml:"port" json:"port"`
	Debug   bool          `env:"DEBUG" envDefault:"false" yaml:"debug" json:"debug"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s" yaml:"timeout" json:"timeout"`
}

type requiredConfig struct {
	Name string `env:"NAME" required:"true"`
	Port int    `env:"PORT"`
}

type secretConfig struct {
	Host string    `env:"HOST"`
	Key  keySecret `env:"KEY"`
}

type nestedConfig struct {
	App  string        `env:"APP"`
	Auth authSubConfig `env:"AUTH"`
}

type authSubConfig struct {
	Issuer string        `env:"ISSUER" yaml:"issuer" json:"issuer"`
	Skew   time.Duration `env:"SKEW" yaml:"skew" json:"skew"`
	Key    keySecret     `env:"KEY"`
}

type sliceConfig struct {
	Origins []string `env:"ORIGINS" envDefault:"a,b,c"`
}

type validatableConfig struct {
	Port int `env:"PORT"`
}

func (c *validatableConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return sferr.Newf(sferr.CodeValidation,
			"config: port %d is out of range [1, 65535]", c.Port)
	}
	return nil
}

type validatableStdlibConfig struct {
	Name string `env:"NAME"`
}

func (c *validatableStdlibConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// writeTestFile creates a file in the test's temp directory and returns
// its path. The test is failed if the file cannot be written.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

// ===========================================================================
// Defaults and Environment Tests
// ===========================================================================

// TestLoad_AppliesDefaults verifies that envDefault tags populate
// zero-valued fields.
func TestLoad_AppliesDefaults(t *testing.T) {
	var cfg basicConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want %q", cfg.Host, "localhost")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

// TestLoad_EnvOverridesDefaults verifies that environment variables win
// over envDefault values.
func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("HOST", "db.internal")
	t.Setenv("PORT", "5433")
	t.Setenv("TIMEOUT", "90s")

	var cfg basicConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "db.internal" {
		t.Errorf("Host = %q, want %q", cfg.Host, "db.internal")
	}
	if cfg.Port != 5433 {
		t.Errorf("Port = %d, want 5433", cfg.Port)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Timeout)
	}
}

// TestLoad_EnvPrefix verifies that the loader prefix is prepended to
// env tag names.
func TestLoad_EnvPrefix(t *testing.T) {
	t.Setenv("SECRETFORGE_HOST", "core.internal")
	t.Setenv("HOST", "unprefixed")

	var cfg basicConfig
	if err := New().WithEnvPrefix("secretforge").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "core.internal" {
		t.Errorf("Host = %q, want prefixed value %q", cfg.Host, "core.internal")
	}
}

// TestLoad_NestedEnvPrefix verifies that a nested struct's env tag
// becomes part of its children's variable names.
func TestLoad_NestedEnvPrefix(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://issuer.test")
	t.Setenv("AUTH_SKEW", "15s")
	t.Setenv("AUTH_KEY", "hunter2")

	var cfg nestedConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Issuer != "https://issuer.test" {
		t.Errorf("Auth.Issuer = %q, want %q", cfg.Auth.Issuer, "https://issuer.test")
	}
	if cfg.Auth.Skew != 15*time.Second {
		t.Errorf("Auth.Skew = %v, want 15s", cfg.Auth.Skew)
	}
	if cfg.Auth.Key.Value() != "hunter2" {
		t.Errorf("Auth.Key.Value() = %q, want %q", cfg.Auth.Key.Value(), "hunter2")
	}
}

// TestLoad_NamedStringType verifies that setField handles named string
// types such as kms.Secret.
func TestLoad_NamedStringType(t *testing.T) {
	t.Setenv("KEY", "s3cret")

	var cfg secretConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Key.Value() != "s3cret" {
		t.Errorf("Key.Value() = %q, want %q", cfg.Key.Value(), "s3cret")
	}
	if cfg.Key.String() != "[REDACTED]" {
		t.Errorf("Key.String() = %q, want redacted", cfg.Key.String())
	}
}

// TestLoad_StringSlice verifies comma-separated slice parsing with
// whitespace trimming.
func TestLoad_StringSlice(t *testing.T) {
	t.Setenv("ORIGINS", " x , y ,z")

	var cfg sliceConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []string{"x", "y", "z"}
	if len(cfg.Origins) != len(want) {
		t.Fatalf("Origins = %v, want %v", cfg.Origins, want)
	}
	for i := range want {
		if cfg.Origins[i] != want[i] {
			t.Errorf("Origins[%d] = %q, want %q", i, cfg.Origins[i], want[i])
		}
	}
}

// TestLoad_InvalidEnvValue verifies that an unparseable env value fails
// with a configuration error.
func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	var cfg basicConfig
	err := New().Load(&cfg)
	if err == nil {
		t.Fatal("Load() = nil error, want parse failure")
	}
	if !sferr.HasCode(err, sferr.CodeInternalConfiguration) {
		t.Errorf("Load() error code = %v, want CONF error", sferr.GetCode(err))
	}
}

// ===========================================================================
// File Layer Tests
// ===========================================================================

// TestLoad_YAMLFile verifies that file values override defaults and env
// vars override file values.
func TestLoad_YAMLFile(t *testing.T) {
	path := writeTestFile(t, "app.yaml", "host: from-file\nport: 9090\n")
	t.Setenv("PORT", "9999")

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "from-file" {
		t.Errorf("Host = %q, want file value %q", cfg.Host, "from-file")
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want env override 9999", cfg.Port)
	}
}

// TestLoad_JSONFile verifies JSON file parsing by extension.
func TestLoad_JSONFile(t *testing.T) {
	path := writeTestFile(t, "app.json", `{"host": "json-host", "port": 7070}`)

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host != "json-host" {
		t.Errorf("Host = %q, want %q", cfg.Host, "json-host")
	}
}

// TestLoad_MissingFileIsIgnored verifies that a nonexistent config file
// is not an error.
func TestLoad_MissingFileIsIgnored(t *testing.T) {
	var cfg basicConfig
	if err := New().WithFile(filepath.Join(t.TempDir(), "absent.yaml")).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v, want nil for missing file", err)
	}
	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want default", cfg.Host)
	}
}

// TestLoad_RejectsTraversalPath verifies that paths containing ".." are
// rejected.
func TestLoad_RejectsTraversalPath(t *testing.T) {
	var cfg basicConfig
	err := New().WithFile("../../etc/passwd.yaml").Load(&cfg)
	if err == nil {
		t.Fatal("Load() = nil error, want traversal rejection")
	}
}

// TestLoad_UnsupportedExtension verifies the extension allow-list.
func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeTestFile(t, "app.toml", "host = 'x'\n")

	var cfg basicConfig
	if err := New().WithFile(path).Load(&cfg); err == nil {
		t.Fatal("Load() = nil error, want unsupported extension error")
	}
}

// ===========================================================================
// Validation Tests
// ===========================================================================

// TestLoad_RequiredField verifies that a zero-valued required field
// fails with VAL_002.
func TestLoad_RequiredField(t *testing.T) {
	var cfg requiredConfig
	err := New().Load(&cfg)
	if !sferr.HasCode(err, sferr.CodeValidationRequired) {
		t.Fatalf("Load() error = %v, want required-field failure", err)
	}

	t.Setenv("NAME", "core")
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error after setting NAME: %v", err)
	}
}

// TestLoad_CustomValidator verifies that the Validator interface runs
// after tag validation and passes through structured errors.
func TestLoad_CustomValidator(t *testing.T) {
	t.Setenv("PORT", "70000")

	var cfg validatableConfig
	err := New().Load(&cfg)
	if !sferr.HasCode(err, sferr.CodeValidation) {
		t.Fatalf("Load() error = %v, want validation failure", err)
	}
}

// TestLoad_CustomValidatorStdlibError verifies that plain errors from a
// Validator are wrapped with a validation code.
func TestLoad_CustomValidatorStdlibError(t *testing.T) {
	var cfg validatableStdlibConfig
	err := New().Load(&cfg)
	if !sferr.IsValidation(err) {
		t.Fatalf("Load() error = %v, want wrapped validation failure", err)
	}
}

// TestLoad_RequiresStructPointer verifies the argument contract.
func TestLoad_RequiresStructPointer(t *testing.T) {
	if err := New().Load(nil); err == nil {
		t.Error("Load(nil) = nil error, want failure")
	}
	var n int
	if err := New().Load(&n); err == nil {
		t.Error("Load(&int) = nil error, want failure")
	}
	var cfg basicConfig
	if err := New().Load(cfg); err == nil {
		t.Error("Load(non-pointer) = nil error, want failure")
	}
}

// TestMustLoad_PanicsOnFailure verifies MustLoad's panic contract.
func TestMustLoad_PanicsOnFailure(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustLoad() did not panic on invalid config")
		}
	}()
	MustLoad[requiredConfig](New())
}
