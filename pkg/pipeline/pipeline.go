// Package pipeline orchestrates one upload batch end to end: NLP
// enrichment, language detection, geocoding, office routing, manager
// assignment, persistence and the session snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"ticketflow/pkg/assign"
	"ticketflow/pkg/geo"
	"ticketflow/pkg/geocode"
	"ticketflow/pkg/logging"
	"ticketflow/pkg/model"
	"ticketflow/pkg/nlp"
	"ticketflow/pkg/session"
)

// DefaultMaxBatch caps how many tickets one upload may carry.
const DefaultMaxBatch = 50

var (
	// ErrEmptyBatch rejects uploads without a single ticket row.
	ErrEmptyBatch = errors.New("no tickets in batch")

	// ErrBatchTooLarge rejects uploads above the ticket limit.
	ErrBatchTooLarge = errors.New("batch exceeds the ticket limit")
)

// Analyzer enriches one ticket description.
type Analyzer interface {
	Analyze(ctx context.Context, description string, segment model.Segment, index, total int) nlp.Result
}

// Geocoder resolves addresses for one batch and is closed afterwards.
type Geocoder interface {
	Geocode(ctx context.Context, addr geocode.Address) (*float64, *float64)
	Close()
}

// GeocoderFactory hands the pipeline a fresh Geocoder per batch, so the
// per-batch caches start empty.
type GeocoderFactory func() Geocoder

// Detector decides the ticket language from its description.
type Detector interface {
	Detect(text string) model.Language
}

// Storage is the slice of the persistence layer the pipeline touches.
type Storage interface {
	UpsertTickets(ctx context.Context, tickets []model.Ticket) error
	UpsertManagers(ctx context.Context, managers []model.Manager) error
	UpdateWorkloads(ctx context.Context, workloads map[string]int) error
	LoadManagers(ctx context.Context) ([]model.Manager, error)
	LoadOffices(ctx context.Context) ([]model.Office, error)
}

// Options tunes batch handling.
type Options struct {
	// MaxBatch caps the batch size; zero means DefaultMaxBatch.
	MaxBatch int

	// FiftyFiftyFallback routes tickets that cannot be placed on the map
	// to the two hub offices in alternation instead of leaving them
	// unmapped.
	FiftyFiftyFallback bool
}

// Processor runs upload batches. Stages run strictly in order; fan-out
// happens only inside the NLP and geocoding stages.
type Processor struct {
	analyzer    Analyzer
	newGeocoder GeocoderFactory
	detector    Detector
	storage     Storage
	sessions    *session.Store[model.SessionSnapshot]

	maxBatch   int
	fiftyFifty bool

	// fiftyMu serializes the distributor across concurrently processed
	// batches; FiftyFifty itself is single-goroutine.
	fiftyMu sync.Mutex
	fifty   geo.FiftyFifty
}

// New creates a Processor.
func New(analyzer Analyzer, newGeocoder GeocoderFactory, detector Detector, storage Storage, sessions *session.Store[model.SessionSnapshot], opts Options) *Processor {
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Processor{
		analyzer:    analyzer,
		newGeocoder: newGeocoder,
		detector:    detector,
		storage:     storage,
		sessions:    sessions,
		maxBatch:    maxBatch,
		fiftyFifty:  opts.FiftyFiftyFallback,
	}
}

// Process runs one batch to completion. Per-ticket provider failures
// degrade to fallbacks inside their stages; only validation, storage
// errors and context cancellation abort the batch. On success the
// snapshot is registered and its session id returned in the summary.
func (p *Processor) Process(ctx context.Context, tickets []model.Ticket, managers []model.Manager) (model.BatchSummary, error) {
	if len(tickets) == 0 {
		return model.BatchSummary{}, ErrEmptyBatch
	}
	if len(tickets) > p.maxBatch {
		return model.BatchSummary{}, fmt.Errorf("%w: %d tickets, limit %d", ErrBatchTooLarge, len(tickets), p.maxBatch)
	}

	total := len(tickets)
	slog.Info("Batch accepted", "tickets", total, "managers", len(managers))

	// NLP enrichment. Analyze never fails the batch; it degrades to the
	// manual-review fallback per ticket.
	nlpStart := time.Now()
	results := make([]nlp.Result, total)
	g, gctx := errgroup.WithContext(ctx)
	for i := range tickets {
		g.Go(func() error {
			results[i] = p.analyzer.Analyze(gctx, tickets[i].Description, tickets[i].Segment, i+1, total)
			return nil
		})
	}
	_ = g.Wait()
	nlpWall := time.Since(nlpStart)

	if err := ctx.Err(); err != nil {
		return model.BatchSummary{}, err
	}

	var inferSum int64
	for i := range tickets {
		r := results[i]
		tickets[i].RequestType = r.RequestType
		tickets[i].Sentiment = r.Sentiment
		tickets[i].PriorityScore = r.PriorityScore
		tickets[i].Language = r.Language
		tickets[i].Summary = r.Summary
		tickets[i].NextActions = r.NextActions
		tickets[i].InferTimeMS = r.InferTimeMS
		inferSum += r.InferTimeMS
	}
	nlpTotalTime := round2(nlpWall.Seconds())
	nlpAvgTime := round2(float64(inferSum) / float64(total) / 1000.0)
	slog.Info("NLP stage done", "elapsed", nlpWall.Round(time.Millisecond), "avg_infer_s", nlpAvgTime)

	// The rule-assisted detector overrides whatever language the model
	// guessed.
	for i := range tickets {
		tickets[i].Language = p.detector.Detect(tickets[i].Description)
	}

	if err := ctx.Err(); err != nil {
		return model.BatchSummary{}, err
	}

	// Geocoding. A fresh provider per batch keeps the query caches
	// batch-local.
	gc := p.newGeocoder()
	g, gctx = errgroup.WithContext(ctx)
	for i := range tickets {
		g.Go(func() error {
			lat, lon := gc.Geocode(gctx, geocode.Address{
				Country: tickets[i].Country,
				Region:  tickets[i].Region,
				City:    tickets[i].City,
				Street:  tickets[i].Street,
				House:   tickets[i].Building,
			})
			tickets[i].Latitude, tickets[i].Longitude = lat, lon
			return nil
		})
	}
	_ = g.Wait()
	gc.Close()

	if err := ctx.Err(); err != nil {
		return model.BatchSummary{}, err
	}

	geocoded := 0
	for i := range tickets {
		if tickets[i].HasCoords() {
			geocoded++
		}
	}
	slog.Info("Geocoding done", "resolved", geocoded, "total", total)

	// Managers come from the upload when the file carried a roster,
	// otherwise from the store. Offices always come from the store.
	rosterUploaded := len(managers) > 0
	if !rosterUploaded {
		loaded, err := p.storage.LoadManagers(ctx)
		if err != nil {
			return model.BatchSummary{}, fmt.Errorf("failed to load managers: %w", err)
		}
		managers = loaded
	}
	offices, err := p.storage.LoadOffices(ctx)
	if err != nil {
		return model.BatchSummary{}, fmt.Errorf("failed to load offices: %w", err)
	}

	baseline := make(map[string]int, len(managers))
	for i := range managers {
		baseline[managers[i].ID] = managers[i].Workload
	}

	summary := p.route(tickets, managers, offices)

	if err := ctx.Err(); err != nil {
		return model.BatchSummary{}, err
	}

	if err := p.storage.UpsertTickets(ctx, tickets); err != nil {
		return model.BatchSummary{}, fmt.Errorf("failed to persist tickets: %w", err)
	}
	if rosterUploaded {
		if err := p.storage.UpsertManagers(ctx, managers); err != nil {
			return model.BatchSummary{}, fmt.Errorf("failed to persist managers: %w", err)
		}
	} else {
		changed := make(map[string]int)
		for i := range managers {
			if managers[i].Workload != baseline[managers[i].ID] {
				changed[managers[i].ID] = managers[i].Workload
			}
		}
		if len(changed) > 0 {
			if err := p.storage.UpdateWorkloads(ctx, changed); err != nil {
				return model.BatchSummary{}, fmt.Errorf("failed to persist workloads: %w", err)
			}
		}
	}

	sessionID := uuid.NewString()
	p.sessions.Put(sessionID, &model.SessionSnapshot{
		Tickets:   tickets,
		Managers:  managers,
		CreatedAt: time.Now(),
	})

	summary.SessionID = sessionID
	summary.TicketCount = total
	summary.ManagerCount = len(managers)
	summary.Status = "success"
	summary.NLPTotalTime = nlpTotalTime
	summary.NLPAvgTime = nlpAvgTime

	slog.Info("Batch done", "session_id", sessionID,
		"ok", summary.OK, "failed", summary.Failed, "unmapped", summary.Unmapped)
	return summary, nil
}

// route assigns every ticket in input order and fills the outcome
// counters. Assignment state (round-robin buckets, workload bumps) is
// batch-local except for the manager slice, whose workloads carry the
// increments out for persistence.
func (p *Processor) route(tickets []model.Ticket, managers []model.Manager, offices []model.Office) model.BatchSummary {
	idx := geo.NewOfficeIndex(offices)
	rr := assign.NewRoundRobin()

	pool := make([]*model.Manager, len(managers))
	for i := range managers {
		pool[i] = &managers[i]
	}

	var summary model.BatchSummary
	for i := range tickets {
		t := &tickets[i]

		office := p.resolveOffice(t, idx, offices)
		if office == nil {
			t.Outcome = model.OutcomeUnmapped
			summary.Unmapped++
			logging.LogOutcome("UNMAPPED", t.CustomerGUID, "no office could be resolved")
			continue
		}

		mgr, officeName := assign.PickManager(t, office.Name, pool, idx, rr)
		if resolved := idx.ByName(officeName); resolved != nil {
			office = resolved
		}
		t.AssignedOfficeName = ptr(office.Name)
		t.AssignedOfficeAddress = ptr(office.Address)

		switch {
		case mgr != nil:
			t.AssignedManagerName = ptr(mgr.FullName)
			t.AssignedManagerLevel = ptr(string(mgr.Position))
			t.Outcome = model.OutcomeAssigned
			summary.OK++
			logging.LogOutcome("OK", t.CustomerGUID, mgr.FullName+" @ "+office.Name)
		case t.RequestType == model.Spam:
			t.Outcome = model.OutcomeSpamSkipped
			summary.OK++
			logging.LogOutcome("OK", t.CustomerGUID, "spam, no assignment needed")
		default:
			t.Outcome = model.OutcomeNoManager
			summary.Failed++
			logging.LogOutcome("FAIL", t.CustomerGUID, "no eligible manager at any office")
		}
	}

	slog.Info("Assignment done", "ok", summary.OK, "failed", summary.Failed, "unmapped", summary.Unmapped)
	return summary
}

// resolveOffice finds the routing office for one ticket. Tickets outside
// Kazakhstan are never distance-routed even when the geocoder produced a
// point for them.
func (p *Processor) resolveOffice(t *model.Ticket, idx *geo.OfficeIndex, offices []model.Office) *model.Office {
	if t.HasCoords() && !geo.IsForeignCountry(t.Country) {
		if o := idx.Nearest(orb.Point{*t.Longitude, *t.Latitude}); o != nil {
			return o
		}
	}
	if p.fiftyFifty {
		p.fiftyMu.Lock()
		defer p.fiftyMu.Unlock()
		return p.fifty.Next(offices)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(s string) *string {
	return &s
}
