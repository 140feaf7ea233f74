package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wesm/knowledge-harvest/config"
	"github.com/wesm/knowledge-harvest/internal/api"
	"github.com/wesm/knowledge-harvest/internal/db"
	"github.com/wesm/knowledge-harvest/internal/logger"
	"github.com/wesm/knowledge-harvest/internal/models"
	"github.com/wesm/knowledge-harvest/internal/storage"
	"github.com/wesm/knowledge-harvest/internal/sync"
)

// errHarvestFailed reports that at least one repository could not be harvested
var errHarvestFailed = errors.New("some repositories failed to harvest")

// options holds the parsed command-line flags
type options struct {
	configPath   string
	createConfig bool
	addRepo      string
	syncAll      bool
	syncRepo     string
	storageMode  string
	apiFlavour   string
}

func main() {
	// Define command-line flags
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.json", "Path to configuration file")
	flag.BoolVar(&opts.createConfig, "init", false, "Create a default configuration file if it doesn't exist")
	flag.StringVar(&opts.addRepo, "add-repo", "", "Add a repository to the configuration (format: owner/name)")
	flag.BoolVar(&opts.syncAll, "sync-all", false, "Harvest all repositories in the configuration")
	flag.StringVar(&opts.syncRepo, "sync-repo", "", "Harvest a specific repository (format: owner/name)")
	flag.StringVar(&opts.storageMode, "storage", "", "Override the storage mode (local, remote or sqlite)")
	flag.StringVar(&opts.apiFlavour, "api", "", "Override the GitHub API used (rest or graphql)")
	flag.Parse()

	log := logger.New(logger.FromEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts, log)
	stop()

	if err != nil {
		if !errors.Is(err, errHarvestFailed) {
			log.Error().Err(err).Msg("Harvest aborted")
		}
		os.Exit(1)
	}
}

// run executes the requested command. Every resource it opens is released
// before it returns.
func run(ctx context.Context, opts options, log zerolog.Logger) error {
	if opts.createConfig {
		if err := config.CreateDefaultConfig(opts.configPath); err != nil {
			return fmt.Errorf("failed to create default configuration: %w", err)
		}
		log.Info().Str("path", opts.configPath).Msg("Created default configuration")
		return nil
	}

	harvest := opts.syncAll || opts.syncRepo != ""

	if opts.addRepo != "" {
		added, err := config.AddRepository(opts.configPath, opts.addRepo)
		if err != nil {
			return fmt.Errorf("failed to add repository %s: %w", opts.addRepo, err)
		}
		if added {
			log.Info().Str("repository", opts.addRepo).Msg("Added repository to configuration")
		} else {
			log.Info().Str("repository", opts.addRepo).Msg("Repository already exists in configuration")
		}

		if !harvest {
			return nil
		}
	}

	if !harvest {
		usage()
		return nil
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.storageMode != "" {
		cfg.Storage.Mode = opts.storageMode
	}
	if opts.apiFlavour != "" {
		cfg.API = opts.apiFlavour
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, closer, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s knowledge storage: %w", cfg.Storage.Mode, err)
	}
	defer closer.Close()
	log.Debug().Str("mode", cfg.Storage.Mode).Msg("Using knowledge storage")

	syncer := sync.New(store, newSource(cfg), log)

	repos := cfg.Repositories
	if opts.syncRepo != "" {
		repos = []string{opts.syncRepo}
	}

	startTime := time.Now()
	failed := 0
	log.Info().Int("repositories", len(repos)).Msg("Harvesting knowledge")
	for _, repoStr := range repos {
		repo, err := models.ParseRepository(repoStr)
		if err != nil {
			log.Error().Err(err).Str("repository", repoStr).Msg("Skipping invalid repository")
			failed++
			continue
		}

		report, err := syncer.SyncRepository(ctx, repo)
		logReport(log, report)
		if err != nil {
			// Continue with other repositories even if one fails
			log.Error().Err(err).Str("repository", repo.FullName()).Msg("Failed to harvest repository")
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}

	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("failed", failed).
		Msg("Harvest completed")
	if failed > 0 {
		return errHarvestFailed
	}
	return ctx.Err()
}

// openStore builds the snapshot store for the configured mode
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, io.Closer, error) {
	switch cfg.Mode {
	case config.StorageLocal:
		store, err := storage.NewLocalStore(cfg.LocalDir)
		return store, nopCloser{}, err

	case config.StorageSQLite:
		database, err := db.New(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Initialize(); err != nil {
			database.Close()
			return nil, nil, err
		}
		return database, database, nil

	case config.StorageRemote:
		objects, err := storage.NewS3ObjectStore(storage.S3Config{
			Endpoint:        cfg.Remote.Endpoint,
			AccessKeyID:     cfg.Remote.AccessKeyID,
			SecretAccessKey: cfg.Remote.SecretAccessKey,
			Bucket:          cfg.Remote.Bucket,
			Prefix:          cfg.Remote.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := objects.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return storage.NewRemoteStore(objects), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
}

func newSource(cfg *config.Config) sync.Source {
	if cfg.API == config.APIGraphQL {
		return api.NewGraphQLClient(cfg.GitHubToken)
	}
	return api.NewGitHubClient(cfg.GitHubToken)
}

func logReport(log zerolog.Logger, report sync.Report) {
	for _, kind := range models.Kinds {
		summary := report.Kind(kind)
		log.Info().
			Str("project", report.Repository.FullName()).
			Str("kind", string(kind)).
			Int("previous", summary.Previous).
			Int("listed", summary.Listed).
			Int("new", summary.New).
			Bool("saved", summary.Saved).
			Msg("Harvest summary")
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func usage() {
	fmt.Println("Knowledge harvester for closed GitHub issues and pull requests")
	fmt.Println("--------------------------------------------------------------")
	fmt.Println("Use -sync-all to harvest all repositories in the configuration")
	fmt.Println("Use -sync-repo owner/name to harvest a specific repository")
	fmt.Println("Use -add-repo owner/name to add a repository to the configuration")
	fmt.Println("Use -init to create a default configuration file")
	fmt.Println("Use -config path/to/config.json to specify a custom configuration file")
	fmt.Println("Use -storage local|remote|sqlite and -api rest|graphql to override the configuration")
	fmt.Println()
	fmt.Printf("GitHub token can be provided via the %s environment variable\n", config.EnvGithubToken)
	fmt.Printf("Object storage is configured with %s, %s, %s, %s and %s\n",
		config.EnvS3Endpoint, config.EnvCephKeyID, config.EnvCephSecretKey, config.EnvCephBucket, config.EnvCephBucketPrefix)
}
