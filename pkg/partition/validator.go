package partition

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// SkimCode is a skimmer's per-call outcome.
type SkimCode int

const (
	SkimOK SkimCode = iota
	SkimNoPartition
	SkimError
)

// Code is the validator's exit-code vocabulary.
type Code int

const (
	OK Code = iota
	NoPartition
	SkimmerFail
	GenericError
)

var codeNames = map[Code]string{
	OK:           "OK",
	NoPartition:  "NO_PARTITION",
	SkimmerFail:  "SKIMMER_FAIL",
	GenericError: "GENERIC_ERROR",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}
func (c Code) Error() string { return c.String() }
func (c Code) Ok() bool      { return c == OK }

// Type identifies a skimmer implementation.
type Type int

// Skimmer filters and enriches candidate partitions for a task-graph
// workload, and commits or rolls back the one the policy finally picks.
type Skimmer interface {
	Skim(tg *TaskGraph, partitions []*Partition, cluster uint32) ([]*Partition, SkimCode)
	SetPartition(tg *TaskGraph, p *Partition) SkimCode
	UnsetPartition(tg *TaskGraph, p *Partition) SkimCode
	Type() Type
}

type registeredSkimmer struct {
	priority int
	skimmer  Skimmer
}

// Validator is the partition validator (C8): a priority-ordered skimmer
// chain visited in descending-priority order.
type Validator struct {
	log zerolog.Logger

	mu       sync.Mutex
	skimmers []registeredSkimmer

	lastFailed Type
}

// New returns an empty validator.
func New(log zerolog.Logger) *Validator {
	return &Validator{log: log.With().Str("component", "partition").Logger()}
}

// RegisterSkimmer adds s to the chain at the given priority. Higher
// numbers run earlier.
func (v *Validator) RegisterSkimmer(s Skimmer, priority int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.skimmers = append(v.skimmers, registeredSkimmer{priority: priority, skimmer: s})
	sort.SliceStable(v.skimmers, func(i, j int) bool {
		return v.skimmers[i].priority > v.skimmers[j].priority
	})
}

// LastFailed returns the type of the skimmer that caused the most recent
// LoadPartitions call to return NoPartition or SkimmerFail. Undefined if
// LoadPartitions was never called or last returned OK.
func (v *Validator) LastFailed() Type {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastFailed
}

func (v *Validator) chain() []registeredSkimmer {
	v.mu.Lock()
	defer v.mu.Unlock()
	chain := make([]registeredSkimmer, len(v.skimmers))
	copy(chain, v.skimmers)
	return chain
}

// LoadPartitions visits the skimmer chain in descending priority,
// filtering (and possibly enriching) an initial non-empty candidate list.
// A skimmer returning SkimError aborts the chain and records the offender
// in LastFailed; the list becoming empty at any point returns NoPartition.
func (v *Validator) LoadPartitions(tg *TaskGraph, partitions []*Partition, cluster uint32) ([]*Partition, Code) {
	if len(partitions) == 0 {
		return nil, NoPartition
	}

	current := partitions
	for _, rs := range v.chain() {
		next, code := rs.skimmer.Skim(tg, current, cluster)
		if code == SkimError {
			v.mu.Lock()
			v.lastFailed = rs.skimmer.Type()
			v.mu.Unlock()
			v.log.Error().Msg("partition skimmer failed")
			return nil, SkimmerFail
		}
		current = next
		if len(current) == 0 {
			v.mu.Lock()
			v.lastFailed = rs.skimmer.Type()
			v.mu.Unlock()
			return nil, NoPartition
		}
	}
	return current, OK
}

// PropagatePartition calls SetPartition on every registered skimmer, in
// descending priority, once the policy has picked the final partition.
// Skimmers are expected to commit; any failure is critical.
func (v *Validator) PropagatePartition(tg *TaskGraph, p *Partition) Code {
	for _, rs := range v.chain() {
		if code := rs.skimmer.SetPartition(tg, p); code != SkimOK {
			v.log.Error().Msg("partition skimmer failed to commit partition")
			return GenericError
		}
	}
	return OK
}

// RemovePartition calls UnsetPartition on every registered skimmer, in
// descending priority, for rollback or termination.
func (v *Validator) RemovePartition(tg *TaskGraph, p *Partition) Code {
	for _, rs := range v.chain() {
		if code := rs.skimmer.UnsetPartition(tg, p); code != SkimOK {
			v.log.Error().Msg("partition skimmer failed to unset partition")
			return GenericError
		}
	}
	return OK
}
