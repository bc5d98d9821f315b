package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
)

// PrometheusSink turns progress events into harvest and annotation metrics.
type PrometheusSink struct {
	runsStarted    *prometheus.CounterVec
	runsFinished   *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	pages          prometheus.Counter
	records        prometheus.Counter
	pageLatency    prometheus.Histogram
	quotaWaits     prometheus.Counter
	quotaWaitTime  prometheus.Counter
	batches        prometheus.Counter
	documents      prometheus.Counter
	tokens         prometheus.Counter
	upstreamTotals prometheus.Gauge
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Runs started partitioned by kind.",
		}, []string{"kind"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_finished_total",
			Help: "Runs finished partitioned by kind and result.",
		}, []string{"kind", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"kind"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Pages received from the upstream API.",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_records_total",
			Help: "Records received from the upstream API.",
		}),
		pageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_page_duration_seconds",
			Help:    "Latency of page requests including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		quotaWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_quota_waits_total",
			Help: "Pauses inserted by the quota table.",
		}),
		quotaWaitTime: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_quota_wait_seconds_total",
			Help: "Time spent sleeping for quota.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotate_batches_total",
			Help: "Annotation batches written.",
		}),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotate_documents_total",
			Help: "Annotated documents written.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotate_tokens_total",
			Help: "Tokens tagged.",
		}),
		upstreamTotals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_upstream_total_count",
			Help: "totalCount reported by the latest page.",
		}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsFinished, s.runDuration,
		s.pages, s.records, s.pageLatency,
		s.quotaWaits, s.quotaWaitTime,
		s.batches, s.documents, s.tokens, s.upstreamTotals,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.runsStarted.WithLabelValues("crawl").Inc()
	case progress.StageAnnotateStart:
		s.runsStarted.WithLabelValues("annotate").Inc()
	case progress.StageCrawlPage:
		s.pages.Inc()
		s.records.Add(float64(evt.Count))
		s.upstreamTotals.Set(float64(evt.Total))
		if evt.Dur > 0 {
			s.pageLatency.Observe(evt.Dur.Seconds())
		}
	case progress.StageQuotaWait:
		s.quotaWaits.Inc()
		s.quotaWaitTime.Add(evt.Dur.Seconds())
	case progress.StageBatchDone:
		s.batches.Inc()
		s.documents.Add(float64(evt.Count))
		s.tokens.Add(float64(evt.Tokens))
	case progress.StageCrawlDone:
		s.finish("crawl", "success", evt)
	case progress.StageCrawlError:
		s.finish("crawl", "error", evt)
	case progress.StageAnnotateDone:
		s.finish("annotate", "success", evt)
	case progress.StageAnnotateError:
		s.finish("annotate", "error", evt)
	}
}

func (s *PrometheusSink) finish(kind, result string, evt progress.Event) {
	s.runsFinished.WithLabelValues(kind, result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
