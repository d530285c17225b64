package zlog

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordAppend is called after each append. retries counts the
	// reservations abandoned because of a stale epoch.
	RecordAppend(duration time.Duration, retries int, err error)

	// RecordRead is called after each read of a position.
	RecordRead(duration time.Duration, err error)

	// RecordFill is called after each fill or trim.
	RecordFill(duration time.Duration, err error)

	// RecordSync is called after each stream sync. scanned is the number of
	// positions examined, discovered the number of new stream positions.
	RecordSync(duration time.Duration, scanned, discovered int, err error)

	// RecordRefresh is called after each projection refresh with the epoch
	// in effect afterwards.
	RecordRefresh(epoch uint64, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAppend(time.Duration, int, error)    {}
func (NoopMetricsCollector) RecordRead(time.Duration, error)           {}
func (NoopMetricsCollector) RecordFill(time.Duration, error)           {}
func (NoopMetricsCollector) RecordSync(time.Duration, int, int, error) {}
func (NoopMetricsCollector) RecordRefresh(uint64, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AppendCount      atomic.Int64
	AppendErrors     atomic.Int64
	AppendRetries    atomic.Int64
	AppendTotalNanos atomic.Int64
	ReadCount        atomic.Int64
	ReadErrors       atomic.Int64
	ReadTotalNanos   atomic.Int64
	FillCount        atomic.Int64
	FillErrors       atomic.Int64
	SyncCount        atomic.Int64
	SyncErrors       atomic.Int64
	SyncScanned      atomic.Int64
	SyncDiscovered   atomic.Int64
	RefreshCount     atomic.Int64
	RefreshErrors    atomic.Int64
	Epoch            atomic.Uint64
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(duration time.Duration, retries int, err error) {
	b.AppendCount.Add(1)
	b.AppendRetries.Add(int64(retries))
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordFill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFill(duration time.Duration, err error) {
	b.FillCount.Add(1)
	if err != nil {
		b.FillErrors.Add(1)
	}
}

// RecordSync implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSync(duration time.Duration, scanned, discovered int, err error) {
	b.SyncCount.Add(1)
	b.SyncScanned.Add(int64(scanned))
	b.SyncDiscovered.Add(int64(discovered))
	if err != nil {
		b.SyncErrors.Add(1)
	}
}

// RecordRefresh implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRefresh(epoch uint64, err error) {
	b.RefreshCount.Add(1)
	if err != nil {
		b.RefreshErrors.Add(1)
		return
	}
	b.Epoch.Store(epoch)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AppendCount:    b.AppendCount.Load(),
		AppendErrors:   b.AppendErrors.Load(),
		AppendRetries:  b.AppendRetries.Load(),
		AppendAvgNanos: avgNanos(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		ReadCount:      b.ReadCount.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadAvgNanos:   avgNanos(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		FillCount:      b.FillCount.Load(),
		FillErrors:     b.FillErrors.Load(),
		SyncCount:      b.SyncCount.Load(),
		SyncErrors:     b.SyncErrors.Load(),
		SyncScanned:    b.SyncScanned.Load(),
		SyncDiscovered: b.SyncDiscovered.Load(),
		RefreshCount:   b.RefreshCount.Load(),
		RefreshErrors:  b.RefreshErrors.Load(),
		Epoch:          b.Epoch.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AppendCount    int64
	AppendErrors   int64
	AppendRetries  int64
	AppendAvgNanos int64
	ReadCount      int64
	ReadErrors     int64
	ReadAvgNanos   int64
	FillCount      int64
	FillErrors     int64
	SyncCount      int64
	SyncErrors     int64
	SyncScanned    int64
	SyncDiscovered int64
	RefreshCount   int64
	RefreshErrors  int64
	Epoch          uint64
}
