package usecase

import "time"

// Telemetry is the slice of worker metrics the pipeline emits. It exists so
// usecases stay testable without a live Prometheus registry.
type Telemetry interface {
	StartFile()
	FinishFile(service, lane string, duration time.Duration, err error)
	SkipFile(service, lane string)
	ObserveQueueLag(service, lane string, lag time.Duration)
	AddChunksIndexed(service string, n int)
	EmbedBatchError(service string)
	IndexError(service string)
	SetPendingLargeFiles(service string, n int)
}

type NopTelemetry struct{}

func (NopTelemetry) StartFile()                                      {}
func (NopTelemetry) FinishFile(string, string, time.Duration, error) {}
func (NopTelemetry) SkipFile(string, string)                         {}
func (NopTelemetry) ObserveQueueLag(string, string, time.Duration)   {}
func (NopTelemetry) AddChunksIndexed(string, int)                    {}
func (NopTelemetry) EmbedBatchError(string)                          {}
func (NopTelemetry) IndexError(string)                               {}
func (NopTelemetry) SetPendingLargeFiles(string, int)                {}
