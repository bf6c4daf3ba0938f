package experts

import (
	"log/slog"
	"sync"
	"time"

	"github.com/markbunyevacz/lambda-extractor/constants"
)

// MatcherKind orders expert matchers by specificity: an exact manufacturer
// match always beats a document-type match, which beats the default.
type MatcherKind int

const (
	MatchDefault MatcherKind = iota
	MatchDocType
	MatchManufacturer
)

// Hints are the optional routing inputs carried by a task.
type Hints struct {
	Manufacturer string
	DocType      string
}

// ExpertConfig is the declarative form (config file / expertRegistry option).
type ExpertConfig struct {
	ID             string             `mapstructure:"id"`
	Manufacturer   string             `mapstructure:"manufacturer"`
	DocType        string             `mapstructure:"doc_type"`
	PromptTemplate string             `mapstructure:"prompt_template"`
	BackendWeights map[string]float64 `mapstructure:"backend_weights"`
	InitialWeight  float64            `mapstructure:"initial_weight"`
}

// Stats are the expert's mutable performance counters, EMA-smoothed.
type Stats struct {
	Score   float64
	Latency time.Duration
	Tasks   int64
}

// Expert is a named configuration bundle specialized for a manufacturer or
// document type. Stats are advisory: they break ties between equally specific
// matchers but never exclude a matching expert.
type Expert struct {
	ID             string
	Kind           MatcherKind
	Manufacturer   string // normalized, set when Kind == MatchManufacturer
	DocType        constants.DocumentType
	PromptTemplate string
	BackendWeights map[string]float64

	stats Stats
}

// Stats returns a copy of the current counters.
func (e *Expert) Stats() Stats { return e.stats }

// PerformanceWeight is the tie-break key; a fresh expert starts at its
// configured initial weight via the score seed.
func (e *Expert) PerformanceWeight() float64 { return e.stats.Score }

// Registry is the process-wide expert set: read-mostly selection, mutex-held
// stat updates.
type Registry struct {
	mu     sync.RWMutex
	all    []*Expert
	def    *Expert
	alpha  float64
	logger *slog.Logger
}

// NewRegistry builds a registry from config. A default expert is always
// registered so SelectExpert is a total function.
func NewRegistry(cfgs []ExpertConfig, alpha float64, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	r := &Registry{alpha: alpha, logger: logger}

	for _, c := range cfgs {
		e := &Expert{
			ID:             c.ID,
			PromptTemplate: c.PromptTemplate,
			BackendWeights: c.BackendWeights,
			stats:          Stats{Score: c.InitialWeight},
		}
		switch {
		case c.Manufacturer != "":
			e.Kind = MatchManufacturer
			e.Manufacturer = constants.NormalizeManufacturer(c.Manufacturer)
		case c.DocType != "":
			e.Kind = MatchDocType
			e.DocType = constants.NormalizeDocType(c.DocType)
		default:
			e.Kind = MatchDefault
		}
		r.all = append(r.all, e)
		if e.Kind == MatchDefault && r.def == nil {
			r.def = e
		}
	}

	if r.def == nil {
		r.def = &Expert{ID: "default", Kind: MatchDefault}
		r.all = append(r.all, r.def)
	}
	return r
}

// SelectExpert picks the most specific matching expert; ties among equal
// specificity go to the higher performance weight, and remaining ties to
// registration order. It never fails: the default expert is the floor.
func (r *Registry) SelectExpert(h Hints) *Expert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	manufacturer := constants.NormalizeManufacturer(h.Manufacturer)
	docType := constants.NormalizeDocType(h.DocType)

	best := r.def
	for _, e := range r.all {
		if !e.matches(manufacturer, docType) {
			continue
		}
		if e.Kind > best.Kind ||
			(e.Kind == best.Kind && e.stats.Score > best.stats.Score) {
			best = e
		}
	}

	r.logger.Debug("experts.selected",
		"expert", best.ID, "kind", int(best.Kind),
		"manufacturer", manufacturer, "doc_type", string(docType),
	)
	return best
}

func (e *Expert) matches(manufacturer string, docType constants.DocumentType) bool {
	switch e.Kind {
	case MatchManufacturer:
		return manufacturer != "" && e.Manufacturer == manufacturer
	case MatchDocType:
		return docType != constants.DocTypeUnknown && e.DocType == docType
	default:
		return true
	}
}

// Observe feeds a completed task's composite score and latency back into the
// chosen expert: new = alpha*observed + (1-alpha)*old.
func (r *Registry) Observe(expertID string, score float64, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.all {
		if e.ID != expertID {
			continue
		}
		if e.stats.Tasks == 0 {
			e.stats.Score = score
			e.stats.Latency = latency
		} else {
			e.stats.Score = r.alpha*score + (1-r.alpha)*e.stats.Score
			e.stats.Latency = time.Duration(r.alpha*float64(latency) + (1-r.alpha)*float64(e.stats.Latency))
		}
		e.stats.Tasks++

		r.logger.Info("experts.observed",
			"expert", e.ID, "score", score, "ema_score", e.stats.Score,
			"latency_ms", latency.Milliseconds(), "tasks", e.stats.Tasks,
		)
		return
	}
	r.logger.Warn("experts.observe.unknown", "expert", expertID)
}

// Snapshot lists all experts with their current stats, for diagnostics.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.all))
	for _, e := range r.all {
		out[e.ID] = e.stats
	}
	return out
}
