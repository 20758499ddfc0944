package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		sessionsStartedTotal,
		sessionsEndedTotal,
		liveSessions,
		turnsTotal,
		generationLatencyMs,
		speakerFaultsTotal,
		evaluationsTotal,
		breakthroughsTotal,
		eventsDroppedTotal,
		advanceRejectedTotal,
	)
}

var (
	sessionsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_sessions_started_total",
			Help: "Sessions started, by kind.",
		},
		[]string{"kind"},
	)

	sessionsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_sessions_ended_total",
			Help: "Sessions torn down, by reason (end, superseded, idle, opening_failed).",
		},
		[]string{"reason"},
	)

	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialogue_sessions_live",
			Help: "Sessions currently held in the registry.",
		},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_turns_total",
			Help: "Turns produced, by session kind and speaker role.",
		},
		[]string{"kind", "role"},
	)

	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialogue_generation_latency_ms",
			Help:    "Utterance generation latency in milliseconds.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		},
		[]string{"role", "success"},
	)

	speakerFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_speaker_faults_total",
			Help: "Speakers skipped because generation failed.",
		},
		[]string{"role"},
	)

	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_evaluations_total",
			Help: "Evaluator calls, by result.",
		},
		[]string{"result"}, // 'ok', 'failed', 'discarded'
	)

	breakthroughsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_breakthroughs_total",
			Help: "Sessions that reached the breakthrough stage.",
		},
	)

	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		},
	)

	advanceRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_advance_rejected_total",
			Help: "Advance calls refused without producing a turn.",
		},
		[]string{"reason"}, // 'in_flight', 'paused', 'ended', 'rate_limited'
	)
)

func IncSessionStarted(kind string) { sessionsStartedTotal.WithLabelValues(norm(kind)).Inc() }

func IncSessionEnded(reason string) { sessionsEndedTotal.WithLabelValues(norm(reason)).Inc() }

func SetLiveSessions(n int) { liveSessions.Set(float64(n)) }

func IncTurn(kind, role string) { turnsTotal.WithLabelValues(norm(kind), norm(role)).Inc() }

func ObserveGeneration(role string, success bool, d time.Duration) {
	generationLatencyMs.WithLabelValues(norm(role), strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}

func IncSpeakerFault(role string) { speakerFaultsTotal.WithLabelValues(norm(role)).Inc() }

func IncEvaluation(result string) { evaluationsTotal.WithLabelValues(norm(result)).Inc() }

func IncBreakthrough() { breakthroughsTotal.Inc() }

func IncEventsDropped(n int) { eventsDroppedTotal.Add(float64(n)) }

func IncAdvanceRejected(reason string) { advanceRejectedTotal.WithLabelValues(norm(reason)).Inc() }
