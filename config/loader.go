package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	mainConfigFileName  = "config.yaml"
	remotesSubdirectory = "remotes"

	defaultPollInterval = 1 * time.Second
)

// Loader reads the main config file plus any per-remote files under
// dataDir/remotes/ into a Snapshot.
type Loader struct {
	dataDir string
}

// NewLoader creates a Loader rooted at dataDir.
func NewLoader(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

func (l *Loader) mainConfigPath() string {
	return filepath.Join(l.dataDir, mainConfigFileName)
}

func (l *Loader) remotesDir() string {
	return filepath.Join(l.dataDir, remotesSubdirectory)
}

// contributingFiles enumerates every file that, if changed, should
// trigger a reload: the main config plus every file under remotes/.
func (l *Loader) contributingFiles() ([]string, error) {
	files := []string{}
	if _, err := os.Stat(l.mainConfigPath()); err == nil {
		files = append(files, l.mainConfigPath())
	}

	entries, err := os.ReadDir(l.remotesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, errors.Wrap(err, "failed to read remotes directory")
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(l.remotesDir(), e.Name()))
		}
	}
	return files, nil
}

// PendingVersion computes the version fingerprint of the configuration
// currently on disk, without fully parsing it.
func (l *Loader) PendingVersion() (string, error) {
	files, err := l.contributingFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return fingerprint(files)
}

type mainConfig struct {
	AutoReload   bool           `mapstructure:"autoReload"`
	PollInterval time.Duration  `mapstructure:"pollInterval"`
	Remotes      []RemoteConfig `mapstructure:"remotes"`
}

// Load parses the full configuration and returns a ready Snapshot.
func (l *Loader) Load() (*Snapshot, error) {
	files, err := l.contributingFiles()
	if err != nil {
		return nil, err
	}

	main := mainConfig{PollInterval: defaultPollInterval}
	if _, err := os.Stat(l.mainConfigPath()); err == nil {
		v := viper.New()
		v.SetConfigFile(l.mainConfigPath())
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read main config file")
		}
		if err := v.Unmarshal(&main); err != nil {
			return nil, errors.Wrap(err, "failed to parse main config file")
		}
	}

	destinations := make(map[string]*RemoteConfig, len(main.Remotes))
	for i := range main.Remotes {
		rc := main.Remotes[i]
		if err := finalizeRemote(&rc); err != nil {
			return nil, errors.Wrapf(err, "remote %q", rc.Name)
		}
		destinations[rc.Name] = &rc
	}

	remoteFiles, err := filepath.Glob(filepath.Join(l.remotesDir(), "*.y*ml"))
	if err != nil {
		return nil, err
	}
	for _, path := range remoteFiles {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		var rc RemoteConfig
		if err := v.Unmarshal(&rc); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		if err := finalizeRemote(&rc); err != nil {
			return nil, errors.Wrapf(err, "remote %q in %s", rc.Name, path)
		}
		destinations[rc.Name] = &rc
	}

	var fp string
	if len(files) > 0 {
		fp, err = fingerprint(files)
		if err != nil {
			return nil, err
		}
	}

	snapshot := &Snapshot{
		Version:      fp,
		AutoReload:   main.AutoReload,
		PollInterval: main.PollInterval,
	}
	for _, d := range destinations {
		snapshot.Destinations = append(snapshot.Destinations, d)
	}
	return snapshot, nil
}

func finalizeRemote(rc *RemoteConfig) error {
	rc.applyDefaults()
	return rc.compilePatterns()
}
