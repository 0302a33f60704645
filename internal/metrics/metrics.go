// Package metrics defines all Prometheus metrics for athena-dhcpc.
// All metrics use the "athena_dhcpc_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "athena_dhcpc"

// --- DHCP Packet Metrics ---

var (
	// PacketsReceived counts accepted server messages by message type.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total DHCP messages accepted from servers, by message type.",
	}, []string{"msg_type"})

	// PacketsSent counts client messages sent by message type.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP messages sent, by message type.",
	}, []string{"msg_type"})

	// PacketsDropped counts received datagrams discarded before reaching the state machine.
	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Total received datagrams dropped, by reason.",
	}, []string{"reason"})

	// SendErrors counts transport send failures.
	SendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Total DHCP send failures, by message type.",
	}, []string{"msg_type"})

	// Retransmissions counts timeout-driven resends by client state.
	Retransmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retransmissions_total",
		Help:      "Total timeout retransmissions, by client state.",
	}, []string{"state"})
)

// --- Client State Metrics ---

var (
	// PollOutcomes counts non-idle poll results.
	PollOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_outcomes_total",
		Help:      "Total poll outcomes other than none, by outcome.",
	}, []string{"outcome"})

	// ClientState is the numeric client state (0=ready .. 5=release).
	ClientState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_state",
		Help:      "Current client state (0=ready, 1=discover, 2=request, 3=leased, 4=rerequest, 5=release).",
	})

	// StateTransitions counts state machine transitions.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Total client state transitions, by from and to state.",
	}, []string{"from", "to"})

	// LeaseSeconds is the lease time of the current lease, 0 when none is held.
	LeaseSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_seconds",
		Help:      "Lease time granted by the server for the current lease in seconds.",
	})

	// LeaseOperations counts lease lifecycle events.
	LeaseOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_operations_total",
		Help:      "Total lease operations, by type (bound, renewed, changed, nak, decline, release).",
	}, []string{"operation"})
)

// --- Conflict Detection Metrics ---

var (
	// ConflictProbes counts conflict probes by method and result.
	ConflictProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_probes_total",
		Help:      "Total conflict probes, by method and result (clear, conflict, error).",
	}, []string{"method", "result"})

	// ConflictProbeDuration tracks probe latency by method.
	ConflictProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "conflict_probe_duration_seconds",
		Help:      "Conflict probe duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"method"})

	// ProbeCacheHits counts probes answered from the verdict cache.
	ProbeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_cache_hits_total",
		Help:      "Total conflict verdicts served from cache.",
	})

	// ProbeCacheMisses counts probes that went to the network.
	ProbeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_cache_misses_total",
		Help:      "Total conflict probes not answered from cache.",
	})
)

// --- Transport Metrics ---

var (
	// ReceiveQueueDrops counts datagrams dropped because the receive queue was full.
	ReceiveQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receive_queue_drops_total",
		Help:      "Total datagrams dropped because the receive queue was full.",
	})

	// SocketOpens counts socket open attempts by result.
	SocketOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "socket_opens_total",
		Help:      "Total socket open attempts, by result (success, error).",
	}, []string{"result"})
)

// --- Event Bus Metrics ---

var (
	// EventsPublished counts events published to the bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total events published to the event bus, by type.",
	}, []string{"type"})

	// EventBufferDrops counts events dropped due to full buffer.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to full event buffer.",
	})

	// HookExecutions counts hook executions by type and result.
	HookExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_executions_total",
		Help:      "Total hook executions, by type (script, webhook) and result (success, error, timeout).",
	}, []string{"hook_type", "result"})

	// HookDuration tracks hook execution latency.
	HookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hook_duration_seconds",
		Help:      "Hook execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
	}, []string{"hook_type"})

	// JournalRecords counts lease history records written.
	JournalRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "journal_records_total",
		Help:      "Total lease journal records written, by event type.",
	}, []string{"type"})
)

// --- Client Info ---

var (
	// ClientInfo is a constant gauge with client metadata.
	ClientInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_info",
		Help:      "Client metadata.",
	}, []string{"version", "interface", "mac"})

	// ClientStartTime is the unix timestamp when the client started.
	ClientStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "client_start_time_seconds",
		Help:      "Unix timestamp when the client started.",
	})
)
