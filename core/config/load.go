package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(dir string) (*Configuration, error) {
	return loadFs(afero.NewOsFs(), dir)
}

func loadFs(fsys afero.Fs, dir string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(dir) == ConfigurationName {
		dir = filepath.Dir(dir)
	}

	configContents, err := afero.ReadFile(fsys, filepath.Join(dir, ConfigurationName))
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.dir = dir
	out.configFs = afero.NewBasePathFs(fsys, dir)
	return &out, nil
}

// Initialize writes the default configuration and a fresh host key into
// dir, creating it if necessary. Files that already exist are left alone so
// rerunning init never clobbers an edited config or rotates the key.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	return initializeFs(afero.NewOsFs(), dir, logger)
}

func initializeFs(fsys afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	if err := fsys.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	base := afero.NewBasePathFs(fsys, dir)

	create := func(name string, generate func() ([]byte, error)) error {
		exists, err := afero.Exists(base, name)
		if err != nil {
			return err
		}
		if exists {
			logger.Info("file exists, skipping", "name", name)
			return nil
		}
		data, err := generate()
		if err != nil {
			return err
		}
		if err := afero.WriteFile(base, name, data, 0600); err != nil {
			return err
		}
		logger.Info("created file", "name", name)
		return nil
	}

	if err := create(ConfigurationName, func() ([]byte, error) {
		return defaultConfigData, nil
	}); err != nil {
		return nil, err
	}
	if err := create(PrivateKeyName, generateHostKey); err != nil {
		return nil, err
	}

	return loadFs(fsys, dir)
}

// generateHostKey produces a PEM encoded ed25519 key for the SSH listener.
func generateHostKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := ssh.MarshalPrivateKey(priv, "gosh host key")
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}
