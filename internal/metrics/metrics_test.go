package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers with the default registry; touch each metric so it
	// shows up in Gather.
	PacketsReceived.WithLabelValues("DHCPOFFER").Inc()
	PacketsSent.WithLabelValues("DHCPDISCOVER").Inc()
	PacketsDropped.WithLabelValues("xid_mismatch").Inc()
	SendErrors.WithLabelValues("DHCPREQUEST").Inc()
	Retransmissions.WithLabelValues("discover").Inc()
	PollOutcomes.WithLabelValues("update").Inc()
	ClientState.Set(3)
	StateTransitions.WithLabelValues("request", "leased").Inc()
	LeaseSeconds.Set(86400)
	LeaseOperations.WithLabelValues("bound").Inc()
	ConflictProbes.WithLabelValues("icmp_probe", "clear").Inc()
	ConflictProbeDuration.WithLabelValues("icmp_probe").Observe(0.1)
	ProbeCacheHits.Inc()
	ProbeCacheMisses.Inc()
	ReceiveQueueDrops.Inc()
	SocketOpens.WithLabelValues("success").Inc()
	EventsPublished.WithLabelValues("lease.bound").Inc()
	EventBufferDrops.Inc()
	HookExecutions.WithLabelValues("script", "success").Inc()
	HookDuration.WithLabelValues("script").Observe(0.2)
	JournalRecords.WithLabelValues("lease.bound").Inc()
	ClientInfo.WithLabelValues("dev", "eth0", "00:08:dc:11:11:11").Set(1)
	ClientStartTime.SetToCurrentTime()

	if got := testutil.ToFloat64(ClientState); got != 3 {
		t.Errorf("ClientState = %v, want 3", got)
	}
	if got := testutil.ToFloat64(LeaseSeconds); got != 86400 {
		t.Errorf("LeaseSeconds = %v, want 86400", got)
	}
	if got := testutil.ToFloat64(ReceiveQueueDrops); got != 1 {
		t.Errorf("ReceiveQueueDrops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ProbeCacheHits); got != 1 {
		t.Errorf("ProbeCacheHits = %v, want 1", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "athena_dhcpc_") {
			t.Errorf("metric %q does not have athena_dhcpc_ prefix", name)
		}
	}
}
