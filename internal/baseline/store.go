// Package baseline holds per-dataset reference metrics for the lifetime
// of the process.
package baseline

import "github.com/signalnine/crucible/internal/bench"

// Record mirrors a dataset's measured aggregate plus the build time and
// reference candidate size. Zero-valued fields are absent: they are seeded
// once by FillMissing and never overwritten afterward.
type Record struct {
	BuildSeconds        float64
	TotalCompileSeconds float64
	TotalExecSeconds    float64
	TotalBinaryBytes    int64
	CandidateBytes      int64
	KernelSeconds       map[string]float64
}

// Store is constructed once by the caller and passed into every
// evaluation. It is deliberately lazy: the first candidate measured for a
// dataset seeds any field the caller has not provided, becoming the
// reference point for later candidates.
//
// The store assumes a single writer. Callers running evaluations from
// multiple goroutines against one Store must synchronize externally.
type Store struct {
	records map[string]*Record
}

func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Get returns the record for a dataset, creating an empty one on first
// access. It never triggers measurement.
func (s *Store) Get(dataset string) *Record {
	rec, ok := s.records[dataset]
	if !ok {
		rec = &Record{KernelSeconds: make(map[string]float64)}
		s.records[dataset] = rec
	}
	return rec
}

// FillMissing seeds every absent field of the dataset's record from the
// just-measured candidate. Populated fields, including existing per-kernel
// entries, are left untouched.
func (s *Store) FillMissing(dataset string, m bench.DatasetMetrics, buildSeconds float64, candidateBytes int64) *Record {
	rec := s.Get(dataset)
	if rec.BuildSeconds == 0 {
		rec.BuildSeconds = buildSeconds
	}
	if rec.TotalCompileSeconds == 0 {
		rec.TotalCompileSeconds = m.TotalCompileSeconds
	}
	if rec.TotalExecSeconds == 0 {
		rec.TotalExecSeconds = m.TotalExecSeconds
	}
	if rec.TotalBinaryBytes == 0 {
		rec.TotalBinaryBytes = m.TotalBinaryBytes
	}
	if rec.CandidateBytes == 0 {
		rec.CandidateBytes = candidateBytes
	}
	for kernel, secs := range m.KernelSeconds {
		if _, ok := rec.KernelSeconds[kernel]; !ok {
			rec.KernelSeconds[kernel] = secs
		}
	}
	return rec
}
