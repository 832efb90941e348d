package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName  = "config.yaml"
	PrivateKeyName     = "private_key"
	AuthorizedKeysName = "authorized_keys"
	AppLogName         = "app.log"
	HistoryName        = "history"
)

type Configuration struct {
	configFs afero.Fs
	dir      string

	// Prompt is the interactive prompt. It understands \u, \h, \w and \$.
	Prompt string `json:"prompt"`
	// HistoryFile names the readline history file, relative to the
	// configuration directory unless absolute.
	HistoryFile string `json:"history_file"`
	// SearchPath overrides PATH for command resolution when non-empty.
	SearchPath []string `json:"search_path"`
	// Aliases maps names to expansions, e.g. "ll" -> "ls -la".
	Aliases map[string]string `json:"aliases"`

	SSH SSH `json:"ssh"`
}

// SSH configures the remote listener.
type SSH struct {
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Banner string `json:"banner"`

	// AllowAnyPassword accepts every password; for demos only.
	AllowAnyPassword bool     `json:"allow_any_password"`
	Passwords        []string `json:"passwords" validate:"unique"`

	// BytesPerSecond throttles session output when positive.
	BytesPerSecond int `json:"bytes_per_second" validate:"gte=0"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// Dir returns the configuration directory.
func (c *Configuration) Dir() string {
	return c.dir
}

// HistoryPath returns where the interactive history lives.
func (c *Configuration) HistoryPath() string {
	name := c.HistoryFile
	if name == "" {
		name = HistoryName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.dir, name)
}

// PrivateKeyPem returns the bytes of the host private key.
func (c *Configuration) PrivateKeyPem() ([]byte, error) {
	return afero.ReadFile(c.fs(), PrivateKeyName)
}

// AuthorizedKeys returns the optional authorized_keys file. Callers treat
// a missing file as "no key auth".
func (c *Configuration) AuthorizedKeys() ([]byte, error) {
	return afero.ReadFile(c.fs(), AuthorizedKeysName)
}

// OpenAppLog opens the event log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration, used when no directory has
// been initialized. Its file accessors resolve against dir.
func Default(dir string) *Configuration {
	out := defaultConfig()
	out.dir = dir
	out.configFs = afero.NewBasePathFs(afero.NewOsFs(), dir)
	return out
}
