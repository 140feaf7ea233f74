package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wesm/knowledge-harvest/internal/extract"
	"github.com/wesm/knowledge-harvest/internal/models"
	"github.com/wesm/knowledge-harvest/internal/storage"
)

// ErrMalformedSnapshot is returned when a previous snapshot exists but cannot be decoded.
// The kind is skipped so the stored document is left untouched.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Source lists closed entities of a repository and fetches their activity
type Source interface {
	ListClosedIssues(ctx context.Context, repo models.Repository) ([]models.Issue, error)
	ListClosedPullRequests(ctx context.Context, repo models.Repository) ([]models.PullRequest, error)
	IssueActivity(ctx context.Context, repo models.Repository, issue models.Issue) (models.Issue, error)
	PullRequestActivity(ctx context.Context, repo models.Repository, pr models.PullRequest) (models.PullRequest, error)
}

// KindReport summarizes the sync of one entity kind
type KindReport struct {
	Previous int  // records in the previous snapshot
	Listed   int  // closed entities listed by the source
	New      int  // listed entities not in the previous snapshot
	Saved    bool // whether the merged snapshot was written
}

// Report summarizes the sync of one repository
type Report struct {
	Repository   models.Repository
	Issues       KindReport
	PullRequests KindReport
}

// Kind returns the report of one entity kind
func (r Report) Kind(kind models.Kind) KindReport {
	if kind == models.KindPullRequest {
		return r.PullRequests
	}
	return r.Issues
}

// Syncer harvests knowledge about closed issues and pull requests into a store
type Syncer struct {
	store  storage.Store
	source Source
	log    zerolog.Logger
}

// New creates a new syncer
func New(store storage.Store, source Source, log zerolog.Logger) *Syncer {
	return &Syncer{
		store:  store,
		source: source,
		log:    log,
	}
}

// SyncRepository harvests the issues and then the pull requests of a repository.
// A failure of one kind does not stop the other; all failures are returned joined.
func (s *Syncer) SyncRepository(ctx context.Context, repo models.Repository) (Report, error) {
	log := s.log.With().
		Str("project", repo.FullName()).
		Str("run_id", uuid.NewString()).
		Logger()

	report := Report{Repository: repo}
	var errs []error

	log.Info().Msg("Issues (that are not pull requests) analysis")
	issues, err := run(ctx, s, log, repo, pipeline[models.Issue]{
		kind:  models.KindIssue,
		label: "issue",
		list: func(ctx context.Context) ([]models.Issue, error) {
			listed, err := s.source.ListClosedIssues(ctx, repo)
			if err != nil {
				return nil, err
			}
			return withoutPullRequests(listed), nil
		},
		number: func(issue models.Issue) int { return issue.Number },
		extract: func(ctx context.Context, issue models.Issue) (any, bool, error) {
			full, err := s.source.IssueActivity(ctx, repo, issue)
			if err != nil {
				return nil, false, err
			}
			record, ok := extract.Issue(full)
			return record, ok, nil
		},
	})
	report.Issues = issues
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to sync issues of %s: %w", repo.FullName(), err))
	}

	log.Info().Msg("Pull requests analysis (including reviews)")
	pulls, err := run(ctx, s, log, repo, pipeline[models.PullRequest]{
		kind:  models.KindPullRequest,
		label: "pull request",
		list: func(ctx context.Context) ([]models.PullRequest, error) {
			return s.source.ListClosedPullRequests(ctx, repo)
		},
		number: func(pr models.PullRequest) int { return pr.Number },
		extract: func(ctx context.Context, pr models.PullRequest) (any, bool, error) {
			full, err := s.source.PullRequestActivity(ctx, repo, pr)
			if err != nil {
				return nil, false, err
			}
			log.Debug().Int("number", pr.Number).Int("reviews", len(full.Reviews)).Msg("Reviews found")
			return extract.PullRequest(full), true, nil
		},
	})
	report.PullRequests = pulls
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to sync pull requests of %s: %w", repo.FullName(), err))
	}

	return report, errors.Join(errs...)
}

// pipeline describes how one entity kind is listed and turned into records
type pipeline[E any] struct {
	kind    models.Kind
	label   string
	list    func(ctx context.Context) ([]E, error)
	number  func(E) int
	extract func(ctx context.Context, entity E) (record any, ok bool, err error)
}

// run loads the previous snapshot, extracts every new entity and saves the merged
// snapshot once at the end. Nothing is written when there is nothing new.
func run[E any](ctx context.Context, s *Syncer, log zerolog.Logger, repo models.Repository, p pipeline[E]) (KindReport, error) {
	var report KindReport
	key := storage.Key{Project: repo.FullName(), Kind: p.kind}
	log = log.With().Str("kind", string(p.kind)).Logger()

	previous, err := s.store.Load(ctx, key)
	if err != nil {
		return report, fmt.Errorf("failed to load previous knowledge: %w", err)
	}
	switch previous.Status {
	case storage.Malformed:
		return report, fmt.Errorf("%w at %s: %v", ErrMalformedSnapshot, s.store.Location(key), previous.Reason)
	case storage.NotFound:
		log.Info().Msg("No previous knowledge found")
	default:
		log.Info().Int("entities", len(previous.Snapshot)).Msg("Found previous knowledge")
	}
	report.Previous = len(previous.Snapshot)

	listing, err := p.list(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list closed entities: %w", err)
	}
	report.Listed = len(listing)

	fresh := NewEntities(previous.Snapshot, listing, func(e E) string {
		return strconv.Itoa(p.number(e))
	})
	report.New = len(fresh)
	if len(fresh) == 0 {
		log.Info().Msg("No new knowledge found for update")
		return report, nil
	}

	if log.GetLevel() <= zerolog.DebugLevel {
		ids := make([]int, 0, len(fresh))
		for _, e := range fresh {
			ids = append(ids, p.number(e))
		}
		log.Debug().Ints("ids", ids).Msg("New ids to be examined")
	}

	records := make(map[string]json.RawMessage, len(fresh))
	for i, entity := range fresh {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		number := p.number(entity)
		log.Info().Int("number", number).Msgf("Analysing %s no. %d/%d", p.label, i+1, len(fresh))

		record, ok, err := p.extract(ctx, entity)
		if err != nil {
			return report, fmt.Errorf("failed to extract %s #%d: %w", p.label, number, err)
		}
		if !ok {
			log.Debug().Int("number", number).Msgf("Skipping %s", p.label)
			continue
		}

		data, err := json.Marshal(record)
		if err != nil {
			return report, fmt.Errorf("failed to marshal %s #%d: %w", p.label, number, err)
		}
		records[strconv.Itoa(number)] = data
	}

	if len(records) == 0 {
		log.Info().Msg("No new knowledge extracted")
		return report, nil
	}

	merged := Merge(previous.Snapshot, records)
	log.Info().
		Str("file", path.Base(key.Path())).
		Int("size", len(merged)).
		Msg("Saving knowledge file")

	if err := s.store.Save(ctx, key, merged); err != nil {
		return report, fmt.Errorf("failed to save knowledge: %w", err)
	}
	report.Saved = true

	log.Info().Str("location", s.store.Location(key)).Msg("Saved knowledge")
	return report, nil
}

func withoutPullRequests(issues []models.Issue) []models.Issue {
	out := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if !issue.IsPullRequest {
			out = append(out, issue)
		}
	}
	return out
}
