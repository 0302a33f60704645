// Package journal keeps an append-only history of lease events in BoltDB.
// It is written from the event bus and read by the history command; the
// client never loads lease state back from it.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/athena-dhcpd/athena-dhcpc/internal/events"
	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
)

var bucketJournal = []byte("lease_journal")

// DefaultLimit caps a query that does not set one.
const DefaultLimit = 1000

// Record is one journal entry.
type Record struct {
	ID           uint64 `json:"id"`
	Timestamp    string `json:"timestamp"`
	Event        string `json:"event"`
	IP           string `json:"ip,omitempty"`
	OldIP        string `json:"old_ip,omitempty"`
	MAC          string `json:"mac,omitempty"`
	Interface    string `json:"interface,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	SubnetMask   string `json:"subnet_mask,omitempty"`
	Router       string `json:"router,omitempty"`
	DNSServer    string `json:"dns_server,omitempty"`
	ServerID     string `json:"server_id,omitempty"`
	LeaseSeconds uint32 `json:"lease_seconds,omitempty"`
	XID          uint32 `json:"xid,omitempty"`
	Method       string `json:"method,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// QueryParams filters a query. Zero fields match everything.
type QueryParams struct {
	Event string
	IP    string
	From  time.Time
	To    time.Time
	Limit int
}

// Journal records bus events into BoltDB.
type Journal struct {
	db         *bolt.DB
	bus        *events.Bus
	logger     *slog.Logger
	maxRecords int
	ch         chan events.Event
	done       chan struct{}
	stopped    chan struct{}
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal database %s: %w", path, err)
	}
	return db, nil
}

// New creates a journal on db. maxRecords > 0 prunes the oldest records
// after each append. bus may be nil for read-only use.
func New(db *bolt.DB, bus *events.Bus, maxRecords int, logger *slog.Logger) (*Journal, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketJournal); err != nil {
			return fmt.Errorf("creating journal bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Journal{
		db:         db,
		bus:        bus,
		logger:     logger,
		maxRecords: maxRecords,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}, nil
}

// Subscribe attaches the journal to the bus so Start misses nothing
// published before it runs.
func (j *Journal) Subscribe() {
	if j.ch == nil {
		j.ch = j.bus.Subscribe(500)
	}
}

// Start records events until Stop. Call in a goroutine.
func (j *Journal) Start() {
	defer close(j.stopped)
	j.Subscribe()
	j.logger.Info("lease journal started", "max_records", j.maxRecords)

	for {
		select {
		case evt, ok := <-j.ch:
			if !ok {
				return
			}
			j.handleEvent(evt)
		case <-j.done:
			return
		}
	}
}

// Stop records what is already queued, then shuts the subscriber down.
// Stop the bus first so nothing is left in flight.
func (j *Journal) Stop() {
	close(j.done)
	if j.ch != nil {
		<-j.stopped
		j.bus.Unsubscribe(j.ch)
		for evt := range j.ch {
			j.handleEvent(evt)
		}
	}
	j.logger.Info("lease journal stopped")
}

func (j *Journal) handleEvent(evt events.Event) {
	rec := Record{
		Timestamp: evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(evt.Type),
		Reason:    evt.Reason,
	}
	if evt.Client != nil {
		rec.MAC = evt.Client.MAC
		rec.Interface = evt.Client.Interface
		rec.Hostname = evt.Client.Hostname
	}
	if ld := evt.Lease; ld != nil {
		rec.IP = ipStr(ld.IP)
		rec.OldIP = ipStr(ld.OldIP)
		rec.SubnetMask = ipStr(ld.SubnetMask)
		rec.Router = ipStr(ld.Router)
		rec.DNSServer = ipStr(ld.DNSServer)
		rec.ServerID = ipStr(ld.ServerID)
		rec.LeaseSeconds = ld.LeaseSeconds
		rec.XID = ld.XID
	}
	if cd := evt.Conflict; cd != nil {
		rec.IP = ipStr(cd.IP)
		rec.ServerID = ipStr(cd.ServerID)
		rec.Method = cd.DetectionMethod
	}

	if err := j.Append(rec); err != nil {
		j.logger.Error("failed to write journal record",
			"event", rec.Event, "ip", rec.IP, "error", err)
	}
}

// Append stores rec under the next sequence number and prunes if needed.
func (j *Journal) Append(rec Record) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournal)

		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("generating journal ID: %w", err)
		}
		rec.ID = id

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshalling journal record: %w", err)
		}
		if err := b.Put(uint64Key(id), data); err != nil {
			return fmt.Errorf("storing journal record: %w", err)
		}

		if j.maxRecords > 0 {
			return prune(b, j.maxRecords)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.JournalRecords.WithLabelValues(rec.Event).Inc()
	return nil
}

// prune deletes the oldest records until at most max remain. It walks the
// cursor rather than Bucket.Stats, which misses writes in the open transaction.
func prune(b *bolt.Bucket, max int) error {
	c := b.Cursor()
	k, _ := c.Last()
	for kept := 0; k != nil && kept < max; kept++ {
		k, _ = c.Prev()
	}

	var stale [][]byte
	for ; k != nil; k, _ = c.Prev() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("pruning journal record: %w", err)
		}
	}
	return nil
}

// Query returns matching records, newest first.
func (j *Journal) Query(params QueryParams) ([]Record, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var results []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, v := c.Last(); k != nil && len(results) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if matchesQuery(rec, params) {
				results = append(results, rec)
			}
		}
		return nil
	})
	return results, err
}

// Count returns the number of stored records.
func (j *Journal) Count() int {
	var count int
	j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketJournal).Stats().KeyN
		return nil
	})
	return count
}

func matchesQuery(rec Record, params QueryParams) bool {
	if params.Event != "" && rec.Event != params.Event {
		return false
	}
	if params.IP != "" && rec.IP != params.IP && rec.OldIP != params.IP {
		return false
	}
	if params.From.IsZero() && params.To.IsZero() {
		return true
	}

	recTime, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return false
	}
	if !params.From.IsZero() && recTime.Before(params.From) {
		return false
	}
	if !params.To.IsZero() && recTime.After(params.To) {
		return false
	}
	return true
}

func uint64Key(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func ipStr(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
