package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a snapshot of cache activity.
type Stats struct {
	MemoryHits    int64
	DiskHits      int64
	Misses        int64
	Promotions    int64
	Expirations   int64
	Writes        int64
	WriteErrors   int64
	CorruptReads  int64
	ProducerCalls int64
	PendingDisk   int
	DiskBytes     int64
	HitRate       float64
}

type counters struct {
	memoryHits    atomic.Int64
	diskHits      atomic.Int64
	misses        atomic.Int64
	promotions    atomic.Int64
	expirations   atomic.Int64
	producerCalls atomic.Int64
}

// register exposes the counters of c to reg, labelled with the cache name.
func (c *Cache[T]) register(reg prometheus.Registerer) error {
	labels := prometheus.Labels{"cache": c.name}
	counter := func(name, help string, value func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "tiercache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value()) })
	}

	collectors := []prometheus.Collector{
		counter("memory_hits_total", "Lookups served by the memory tier.", c.counters.memoryHits.Load),
		counter("disk_hits_total", "Lookups served by the disk tier.", c.counters.diskHits.Load),
		counter("misses_total", "Lookups that found no valid entry.", c.counters.misses.Load),
		counter("promotions_total", "Disk hits copied into the memory tier.", c.counters.promotions.Load),
		counter("expirations_total", "Entries found expired and purged.", c.counters.expirations.Load),
		counter("producer_calls_total", "GetOrCompute producer invocations.", c.counters.producerCalls.Load),
		counter("disk_writes_total", "Entries persisted to disk.", c.disk.writes.Load),
		counter("disk_write_errors_total", "Failed disk writes.", c.disk.writeErrors.Load),
		counter("disk_corrupt_reads_total", "Cache files that failed to decode.", c.disk.corrupt.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "tiercache",
			Name:        "disk_pending_operations",
			Help:        "Disk operations waiting on the worker.",
			ConstLabels: labels,
		}, func() float64 { return float64(c.disk.Pending()) }),
	}

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[T]) Stats() Stats {
	s := Stats{
		MemoryHits:    c.counters.memoryHits.Load(),
		DiskHits:      c.counters.diskHits.Load(),
		Misses:        c.counters.misses.Load(),
		Promotions:    c.counters.promotions.Load(),
		Expirations:   c.counters.expirations.Load(),
		ProducerCalls: c.counters.producerCalls.Load(),
		Writes:        c.disk.writes.Load(),
		WriteErrors:   c.disk.writeErrors.Load(),
		CorruptReads:  c.disk.corrupt.Load(),
		PendingDisk:   c.disk.Pending(),
		DiskBytes:     c.disk.Usage(),
	}

	if total := s.MemoryHits + s.DiskHits + s.Misses; total > 0 {
		s.HitRate = float64(s.MemoryHits+s.DiskHits) / float64(total)
	}
	return s
}
