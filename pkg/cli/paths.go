package cli

import (
	"os"
	"path/filepath"
)

// Paths provides access to the client's directories under ~/.giztoy.
type Paths struct {
	AppName string
	HomeDir string
}

func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: appName, HomeDir: home}, nil
}

// AppDir returns ~/.giztoy/<app>.
func (p *Paths) AppDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir, p.AppName)
}

// ConfigFile returns ~/.giztoy/<app>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// DataDir returns ~/.giztoy/<app>/data, where the credential slot lives.
func (p *Paths) DataDir() string {
	return filepath.Join(p.AppDir(), "data")
}

// MediaDir returns ~/.giztoy/<app>/media, used by --keep-media.
func (p *Paths) MediaDir() string {
	return filepath.Join(p.AppDir(), "media")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir(), 0700)
}
