package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trivia-service/internal/domain"
)

// Catalog exposes the category listings of the question bank.
type Catalog interface {
	Categories(ctx context.Context) ([]domain.Category, error)
	CategoryCount(ctx context.Context, categoryID int) (domain.QuestionCount, error)
}

const defaultFanout = 4

// CatalogService serves category listings and raw question batches.
type CatalogService struct {
	catalog Catalog
	source  QuestionSource
	fanout  int
	log     logrus.FieldLogger
}

func NewCatalogService(catalog Catalog, source QuestionSource, fanout int, log logrus.FieldLogger) *CatalogService {
	if fanout <= 0 {
		fanout = defaultFanout
	}
	return &CatalogService{catalog: catalog, source: source, fanout: fanout, log: log}
}

func (s *CatalogService) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.catalog.Categories(ctx)
}

// CategoryCount returns the question totals of one category.
func (s *CatalogService) CategoryCount(ctx context.Context, categoryID int) (domain.CategoryCount, error) {
	if categoryID <= 0 {
		return domain.CategoryCount{}, domain.ErrInvalidCategory
	}
	count, err := s.catalog.CategoryCount(ctx, categoryID)
	if err != nil {
		return domain.CategoryCount{}, err
	}
	return domain.CategoryCount{CategoryID: categoryID, Count: count}, nil
}

// CategoryCounts lists every category with its question totals. Counts are loaded
// concurrently; a category whose count fails is reported with zero totals and an error
// message instead of failing the whole listing.
func (s *CatalogService) CategoryCounts(ctx context.Context) ([]domain.CategoryWithCount, error) {
	categories, err := s.catalog.Categories(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CategoryWithCount, len(categories))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, c := range categories {
		out[i] = domain.CategoryWithCount{ID: c.ID, Name: c.Name}
		g.Go(func() error {
			count, err := s.catalog.CategoryCount(gctx, c.ID)
			if err != nil {
				out[i].Error = "failed to load question count"
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("category %d: %w", c.ID, err))
				mu.Unlock()
				return nil
			}
			out[i].Count = count
			return nil
		})
	}
	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		s.log.WithError(err).WithField("failed", errs.Len()).Warn("some category counts could not be loaded")
	}
	return out, nil
}

// Questions fetches a batch of questions for the given configuration without starting a game.
func (s *CatalogService) Questions(ctx context.Context, cfg domain.GameConfig) ([]domain.Question, error) {
	return s.source.FetchQuestions(ctx, cfg.Query())
}
