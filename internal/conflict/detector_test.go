package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athena-dhcpd/athena-dhcpc/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedProber returns a fixed verdict and counts calls.
type scriptedProber struct {
	conflict bool
	err      error
	block    bool
	calls    int
}

func (s *scriptedProber) Method() string { return "scripted" }

func (s *scriptedProber) Probe(ctx context.Context, _ net.IP) (bool, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return false, nil
	}
	return s.conflict, s.err
}

// fakeSender returns a fixed send error.
type fakeSender struct {
	err  error
	dst  *net.UDPAddr
	data []byte
}

func (f *fakeSender) SendToContext(_ context.Context, b []byte, dst *net.UDPAddr) (int, error) {
	f.dst = dst
	f.data = append([]byte(nil), b...)
	if f.err != nil {
		return 0, f.err
	}
	return len(b), nil
}

func TestSendProberCompletedSendIsConflict(t *testing.T) {
	s := &fakeSender{}
	p := NewSendProber(s, 0, testLogger())

	conflict, err := p.Probe(context.Background(), net.IPv4(192, 168, 1, 50))
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.Equal(t, "CHECK_IP_CONFLICT", string(s.data))
	assert.Equal(t, DefaultProbePort, s.dst.Port)
	assert.True(t, s.dst.IP.Equal(net.IPv4(192, 168, 1, 50)))
	assert.Equal(t, "send_probe", p.Method())
}

func TestSendProberTimeoutIsClear(t *testing.T) {
	s := &fakeSender{err: fmt.Errorf("sending: %w", transport.ErrSendTimeout)}
	p := NewSendProber(s, 6000, testLogger())

	conflict, err := p.Probe(context.Background(), net.IPv4(192, 168, 1, 50))
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Equal(t, 6000, s.dst.Port)
}

func TestSendProberOtherErrors(t *testing.T) {
	s := &fakeSender{err: transport.ErrClosed}
	p := NewSendProber(s, 0, testLogger())

	conflict, err := p.Probe(context.Background(), net.IPv4(192, 168, 1, 50))
	assert.False(t, conflict)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestDetectorCachesConflicts(t *testing.T) {
	sp := &scriptedProber{conflict: true}
	d := NewDetector(sp, testLogger(), DetectorConfig{CacheTTL: time.Minute})
	ip := net.IPv4(192, 168, 1, 50)

	conflict, err := d.Probe(context.Background(), ip)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = d.Probe(context.Background(), ip)
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.Equal(t, 1, sp.calls, "second lookup served from cache")
	assert.Equal(t, "scripted", d.Method())
}

func TestDetectorDoesNotCacheClear(t *testing.T) {
	sp := &scriptedProber{}
	d := NewDetector(sp, testLogger(), DetectorConfig{CacheTTL: time.Minute})
	ip := net.IPv4(192, 168, 1, 50)

	for i := 0; i < 2; i++ {
		conflict, err := d.Probe(context.Background(), ip)
		require.NoError(t, err)
		assert.False(t, conflict)
	}
	assert.Equal(t, 2, sp.calls)
	assert.Equal(t, 0, d.Cache().Len())
}

func TestDetectorBoundsProbe(t *testing.T) {
	sp := &scriptedProber{block: true}
	d := NewDetector(sp, testLogger(), DetectorConfig{ProbeTimeout: 20 * time.Millisecond})

	start := time.Now()
	conflict, err := d.Probe(context.Background(), net.IPv4(10, 0, 0, 9))
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetectorPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	d := NewDetector(&scriptedProber{err: boom}, testLogger(), DetectorConfig{})

	_, err := d.Probe(context.Background(), net.IPv4(10, 0, 0, 9))
	assert.ErrorIs(t, err, boom)
}

func TestICMPProberLoopback(t *testing.T) {
	p := NewICMPProber(testLogger())
	defer p.Close()
	if !p.Available() {
		t.Skip("no ICMP socket available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conflict, err := p.Probe(ctx, net.IPv4(127, 0, 0, 1))
	require.NoError(t, err)
	assert.True(t, conflict, "loopback always answers")
}

func TestICMPProberDegraded(t *testing.T) {
	p := &ICMPProber{logger: testLogger()}
	conflict, err := p.Probe(context.Background(), net.IPv4(127, 0, 0, 1))
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Equal(t, "icmp_probe", p.Method())
}
