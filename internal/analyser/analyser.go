package analyser

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/lebinh/s3opt/internal/store"
)

// Analyser is a policy unit deciding and optionally repairing correctness
// of one object's headers or content.
//
// Start resets counters at scan begin. Analyse examines one object and,
// unless dryRun is set, repairs it through the store. Finish summarises the
// scan as a Verdict. Analyse is called concurrently from many workers;
// implementations keep their statistics in a Stats and must not rely on
// any other mutable state.
type Analyser interface {
	Name() string
	Start()
	Analyse(ctx context.Context, st store.Store, obj *store.Object, dryRun bool) error
	Finish() Verdict
}

// Stats holds one analyser's per-run counters. Increments happen from many
// workers at once, so all access goes through atomics.
type Stats struct {
	total       int64
	problematic int64
	changed     int64
	bytesIn     int64
	bytesSaved  int64
}

func (s *Stats) reset() {
	atomic.StoreInt64(&s.total, 0)
	atomic.StoreInt64(&s.problematic, 0)
	atomic.StoreInt64(&s.changed, 0)
	atomic.StoreInt64(&s.bytesIn, 0)
	atomic.StoreInt64(&s.bytesSaved, 0)
}

func (s *Stats) addTotal()       { atomic.AddInt64(&s.total, 1) }
func (s *Stats) addProblematic() { atomic.AddInt64(&s.problematic, 1) }
func (s *Stats) addChanged()     { atomic.AddInt64(&s.changed, 1) }

func (s *Stats) addBytesIn(n int)    { atomic.AddInt64(&s.bytesIn, int64(n)) }
func (s *Stats) addBytesSaved(n int) { atomic.AddInt64(&s.bytesSaved, int64(n)) }

// Total returns the number of objects examined.
func (s *Stats) Total() int64 { return atomic.LoadInt64(&s.total) }

// Problematic returns the number of objects found incorrect.
func (s *Stats) Problematic() int64 { return atomic.LoadInt64(&s.problematic) }

// Changed returns the number of objects actually repaired.
func (s *Stats) Changed() int64 { return atomic.LoadInt64(&s.changed) }

// BytesIn returns the cumulative size of examined content.
func (s *Stats) BytesIn() int64 { return atomic.LoadInt64(&s.bytesIn) }

// BytesSaved returns the cumulative size reduction of accepted rewrites.
func (s *Stats) BytesSaved() int64 { return atomic.LoadInt64(&s.bytesSaved) }

// Status classifies a scan verdict.
type Status int

const (
	// StatusOK means every examined object was correct
	StatusOK Status = iota

	// StatusChanged means problems were found and repaired
	StatusChanged

	// StatusProblem means problems were found but not repaired
	StatusProblem
)

// String returns the display form of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusChanged:
		return "changed"
	case StatusProblem:
		return "problem"
	default:
		return "unknown"
	}
}

// Verdict is one analyser's human-readable scan summary.
type Verdict struct {
	Analyser string
	Status   Status
	Message  string
}

// verdict renders the final counters. withSavings appends the cumulative
// byte reduction, used by content analysers.
func (s *Stats) verdict(name string, withSavings bool) Verdict {
	total := s.Total()
	problematic := s.Problematic()
	changed := s.Changed()

	if problematic == 0 {
		return Verdict{
			Analyser: name,
			Status:   StatusOK,
			Message:  fmt.Sprintf("all %d objects are ok", total),
		}
	}

	savings := ""
	if withSavings && s.BytesIn() > 0 {
		savings = fmt.Sprintf(", saved %s (%.2f%% reduction)",
			humanize.Bytes(uint64(s.BytesSaved())),
			float64(s.BytesSaved())/float64(s.BytesIn())*100)
	}

	if changed > 0 {
		return Verdict{
			Analyser: name,
			Status:   StatusChanged,
			Message: fmt.Sprintf("%d out of %d objects changed (%.2f%%)%s",
				changed, total, float64(changed)/float64(total)*100, savings),
		}
	}
	return Verdict{
		Analyser: name,
		Status:   StatusProblem,
		Message: fmt.Sprintf("%d out of %d objects are problematic (%.2f%%)%s",
			problematic, total, float64(problematic)/float64(total)*100, savings),
	}
}
