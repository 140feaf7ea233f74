package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/wesm/knowledge-harvest/internal/models"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "GITHUB_ACCESS_TOKEN"
	// EnvLegacyGithubToken is read when EnvGithubToken is not set
	EnvLegacyGithubToken = "ARGH_GITHUB_TOKEN"
	// EnvStorageMode overrides storage.mode
	EnvStorageMode = "KNOWLEDGE_STORAGE"

	EnvCephKeyID        = "CEPH_KEY_ID"
	EnvCephSecretKey    = "CEPH_SECRET_KEY"
	EnvCephBucketPrefix = "CEPH_BUCKET_PREFIX"
	EnvCephBucket       = "CEPH_BUCKET"
	EnvS3Endpoint       = "S3_ENDPOINT_URL"
)

// Storage modes
const (
	StorageLocal  = "local"
	StorageRemote = "remote"
	StorageSQLite = "sqlite"
)

// API flavours used to talk to GitHub
const (
	APIRest    = "rest"
	APIGraphQL = "graphql"
)

const (
	defaultLocalDir     = "bot_knowledge"
	defaultDatabasePath = "knowledge.db"
)

// Config represents the application configuration
type Config struct {
	// GitHub API token for authentication (optional, usually set via GITHUB_ACCESS_TOKEN)
	GitHubToken string `json:"github_token,omitempty"`

	// API selects the GitHub client: "rest" or "graphql"
	API string `json:"api" validate:"oneof=rest graphql"`

	Storage StorageConfig `json:"storage"`

	// List of repositories to harvest in the format "owner/name"
	Repositories []string `json:"repositories" validate:"dive,repository"`
}

// StorageConfig selects where knowledge snapshots live
type StorageConfig struct {
	Mode string `json:"mode" validate:"oneof=local remote sqlite"`

	// Root directory of the local snapshot tree
	LocalDir string `json:"local_dir,omitempty"`

	// Path to the SQLite database file
	DatabasePath string `json:"database_path,omitempty"`

	// Object store credentials only come from the environment
	Remote RemoteConfig `json:"-" validate:"-"`
}

// RemoteConfig holds the S3-compatible object store settings
type RemoteConfig struct {
	Endpoint        string `validate:"required"`
	AccessKeyID     string `validate:"required"`
	SecretAccessKey string `validate:"required"`
	Bucket          string `validate:"required"`
	Prefix          string
}

// LoadConfig loads the configuration from a JSON file and applies environment overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults(filepath.Dir(path))

	return &config, nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv(EnvGithubToken); token != "" {
		c.GitHubToken = token
	} else if token := os.Getenv(EnvLegacyGithubToken); token != "" {
		c.GitHubToken = token
	}

	if mode := os.Getenv(EnvStorageMode); mode != "" {
		c.Storage.Mode = mode
	}

	c.Storage.Remote = RemoteConfig{
		Endpoint:        os.Getenv(EnvS3Endpoint),
		AccessKeyID:     os.Getenv(EnvCephKeyID),
		SecretAccessKey: os.Getenv(EnvCephSecretKey),
		Bucket:          os.Getenv(EnvCephBucket),
		Prefix:          os.Getenv(EnvCephBucketPrefix),
	}
}

// applyDefaults fills in unset fields; relative paths are taken relative to the config directory
func (c *Config) applyDefaults(configDir string) {
	if c.API == "" {
		c.API = APIRest
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = StorageLocal
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = defaultLocalDir
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = defaultDatabasePath
	}

	if !filepath.IsAbs(c.Storage.LocalDir) {
		c.Storage.LocalDir = filepath.Join(configDir, c.Storage.LocalDir)
	}
	if !filepath.IsAbs(c.Storage.DatabasePath) {
		c.Storage.DatabasePath = filepath.Join(configDir, c.Storage.DatabasePath)
	}
}

// Validate checks the configuration. Object store settings are only required in remote mode.
func (c *Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return validationError(err)
	}
	if c.Storage.Mode == StorageRemote {
		if err := v.Struct(c.Storage.Remote); err != nil {
			return validationError(err)
		}
	}
	return nil
}

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("repository", func(fl validator.FieldLevel) bool {
		_, err := models.ParseRepository(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register repository validation: %w", err)
	}
	return v, nil
}

// validationError flattens validator errors into one readable error
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: failed %q (value %q)", fe.Namespace(), fe.Tag(), fmt.Sprint(fe.Value())))
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AddRepository appends a repository to the config file unless it is already listed.
// The file is rewritten from its raw contents so environment overrides and resolved
// paths are not persisted.
func AddRepository(path, repository string) (bool, error) {
	if _, err := models.ParseRepository(repository); err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return false, fmt.Errorf("failed to parse config file: %w", err)
	}

	for _, repo := range config.Repositories {
		if repo == repository {
			return false, nil
		}
	}

	config.Repositories = append(config.Repositories, repository)
	if err := SaveConfig(&config, path); err != nil {
		return false, err
	}
	return true, nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		API: APIRest,
		Storage: StorageConfig{
			Mode:         StorageLocal,
			LocalDir:     defaultLocalDir,
			DatabasePath: defaultDatabasePath,
		},
		Repositories: []string{"example/repo"},
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
