package repo

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	badgerds "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-ledger/pkg/config"
)

var log = logging.Logger("repo")

const (
	configFilename  = "config.toml"
	versionFilename = "version"
)

// NoRepoError is returned when trying to open a repo where one does not exist
type NoRepoError struct {
	Path string
}

func (err NoRepoError) Error() string {
	return fmt.Sprintf("no ledger repo found in %s.\nplease run: 'ledger init'", err.Path)
}

// FSRepo is a repo implementation backed by a filesystem.
type FSRepo struct {
	path    string
	version uint

	// lk guards the config
	lk  sync.RWMutex
	cfg *config.Config
	ds  Datastore
}

var _ Repo = (*FSRepo)(nil)

// InitFSRepo initializes an fsrepo at the given path using the given
// configuration. It fails if the directory already holds a repo.
func InitFSRepo(p string, cfg *config.Config) error {
	expath, err := homedir.Expand(p)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	if err := checkWritable(expath); err != nil {
		return err
	}

	if err := initConfig(expath, cfg); err != nil {
		return err
	}

	return ioutil.WriteFile(filepath.Join(expath, versionFilename), []byte(strconv.Itoa(int(Version))), 0644)
}

// OpenFSRepo opens an already initialized fsrepo at the given path
func OpenFSRepo(p string) (*FSRepo, error) {
	expath, err := homedir.Expand(p)
	if err != nil {
		return nil, err
	}

	r := &FSRepo{path: expath}

	if !fileExists(filepath.Join(expath, configFilename)) {
		return nil, &NoRepoError{Path: p}
	}

	localVersion, err := r.loadVersion()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load version")
	}
	if localVersion != Version {
		return nil, fmt.Errorf("invalid repo version, got %d expected %d", localVersion, Version)
	}
	r.version = localVersion

	if err := r.loadConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to load config file")
	}

	if err := r.openDatastore(); err != nil {
		return nil, errors.Wrap(err, "failed to open datastore")
	}

	log.Debugf("opened repo at %s", expath)
	return r, nil
}

// Config returns the configuration object.
func (r *FSRepo) Config() *config.Config {
	r.lk.RLock()
	defer r.lk.RUnlock()

	return r.cfg
}

// ReplaceConfig replaces the current config and rewrites config.toml.
func (r *FSRepo) ReplaceConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	r.lk.Lock()
	defer r.lk.Unlock()

	tmp := filepath.Join(r.path, configFilename+".tmp")
	if err := cfg.WriteFile(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(r.path, configFilename)); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Datastore returns the datastore.
func (r *FSRepo) Datastore() Datastore {
	return r.ds
}

// Version returns the version of the repo
func (r *FSRepo) Version() uint {
	return r.version
}

// Path returns the path the fsrepo is at
func (r *FSRepo) Path() (string, error) {
	return r.path, nil
}

// Close closes the datastore.
func (r *FSRepo) Close() error {
	if err := r.ds.Close(); err != nil {
		return errors.Wrap(err, "failed to close datastore")
	}
	return nil
}

func (r *FSRepo) loadConfig() error {
	cfg, err := config.ReadFile(filepath.Join(r.path, configFilename))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

func (r *FSRepo) loadVersion() (uint, error) {
	file, err := ioutil.ReadFile(filepath.Join(r.path, versionFilename))
	if err != nil {
		return 0, err
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(file)))
	if err != nil {
		return 0, errors.New("corrupt version file: version is not an integer")
	}

	return uint(version), nil
}

func (r *FSRepo) openDatastore() error {
	switch r.cfg.Datastore.Type {
	case "badgerds":
		ds, err := badgerds.NewDatastore(filepath.Join(r.path, r.cfg.Datastore.Path), badgerOptions())
		if err != nil {
			return err
		}
		r.ds = ds
	default:
		return fmt.Errorf("unknown datastore type in config: %s", r.cfg.Datastore.Type)
	}

	return nil
}

func badgerOptions() *badgerds.Options {
	opts := badgerds.DefaultOptions
	opts.Truncate = true
	return &opts
}

func initConfig(p string, cfg *config.Config) error {
	configFile := filepath.Join(p, configFilename)
	if fileExists(configFile) {
		return fmt.Errorf("file already exists: %s", configFile)
	}

	return cfg.WriteFile(configFile)
}

func checkWritable(dir string) error {
	_, err := os.Stat(dir)
	if err == nil {
		return nil
	}

	if os.IsNotExist(err) {
		// dir doesnt exist, check that we can create it
		return os.MkdirAll(dir, 0775)
	}

	if os.IsPermission(err) {
		return errors.Wrapf(err, "cannot write to %s, incorrect permissions", dir)
	}

	return err
}

func fileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}
