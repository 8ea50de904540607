package scraper

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jgoulah/waterscraper/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CollectorOptions configures a Collector
type CollectorOptions struct {
	PortalURL  string         // fallback: DefaultPortalURL
	Workers    int            // concurrent month fetches, fallback: 4
	NewFetcher FetcherFactory // fallback: a fresh HTTPFetcher per run
	Logger     *zap.Logger
}

// Collector scrapes daily consumption for a date range
type Collector struct {
	portalURL  string
	workers    int
	newFetcher FetcherFactory
	logger     *zap.Logger
}

// NewCollector creates a collector
func NewCollector(opts CollectorOptions) *Collector {
	c := &Collector{
		portalURL:  opts.PortalURL,
		workers:    opts.Workers,
		newFetcher: opts.NewFetcher,
		logger:     opts.Logger,
	}
	if c.portalURL == "" {
		c.portalURL = DefaultPortalURL
	}
	if c.workers <= 0 {
		c.workers = 4
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.newFetcher == nil {
		c.newFetcher = func() (Fetcher, error) {
			return NewHTTPFetcher(c.logger)
		}
	}
	return c
}

// CollectOption customizes a single collection run
type CollectOption func(*collectRun)

type collectRun struct {
	observer func(models.Consumption)
}

// WithObserver streams every in-range record to fn as it is scraped. Calls
// are serialized; their order across months is unspecified.
func WithObserver(fn func(models.Consumption)) CollectOption {
	return func(r *collectRun) {
		r.observer = fn
	}
}

// Collect returns daily consumption keyed by ISO date for [from, to]. A nil
// to means today. Either every month is read or an error is returned.
func (c *Collector) Collect(ctx context.Context, creds Credentials, from time.Time, to *time.Time, opts ...CollectOption) (map[string]int, error) {
	records, err := c.CollectRecords(ctx, creds, from, to, opts...)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int, len(records))
	for _, record := range records {
		result[record.Key()] = record.Liters
	}
	return result, nil
}

// CollectRecords is Collect returning the records ordered by date
func (c *Collector) CollectRecords(ctx context.Context, creds Credentials, from time.Time, to *time.Time, opts ...CollectOption) ([]models.Consumption, error) {
	var run collectRun
	for _, opt := range opts {
		opt(&run)
	}

	notBefore := DateOf(from)
	notAfter := Today()
	if to != nil {
		notAfter = DateOf(*to)
	}
	if notBefore.After(notAfter) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, notBefore.Format(time.DateOnly), notAfter.Format(time.DateOnly))
	}

	fetcher, err := c.newFetcher()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	if closer, ok := fetcher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	nav := NewNavigator(fetcher, creds, c.portalURL, c.logger)
	if err := nav.Login(ctx); err != nil {
		return nil, err
	}

	periods := ExpandPeriods(notBefore, notAfter)
	c.logger.Info("logged in, fetching consumption",
		zap.String("from", notBefore.Format(time.DateOnly)),
		zap.String("to", notAfter.Format(time.DateOnly)),
		zap.Int("months", len(periods)),
	)

	var (
		mu     sync.Mutex
		byDate = map[string]models.Consumption{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, p := range periods {
		g.Go(func() error {
			records, err := nav.FetchPeriod(gctx, p, notBefore, notAfter)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, record := range records {
				byDate[record.Key()] = record
				if run.observer != nil {
					run.observer(record)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := nav.Finish(); err != nil {
		return nil, err
	}

	records := make([]models.Consumption, 0, len(byDate))
	for _, record := range byDate {
		records = append(records, record)
	}
	slices.SortFunc(records, func(a, b models.Consumption) int {
		return a.Date.Compare(b.Date)
	})

	c.logger.Info("collected consumption", zap.Int("days", len(records)))
	return records, nil
}
