package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVHeaders returns the CSV column headers for journal records.
var CSVHeaders = []string{
	"id", "timestamp", "event", "ip", "old_ip", "mac", "interface", "hostname",
	"subnet_mask", "router", "dns_server", "server_id", "lease_seconds", "xid",
	"method", "reason",
}

// WriteCSV writes journal records as CSV to the given writer.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeaders); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatUint(r.ID, 10),
			r.Timestamp,
			r.Event,
			r.IP,
			r.OldIP,
			r.MAC,
			r.Interface,
			r.Hostname,
			r.SubnetMask,
			r.Router,
			r.DNSServer,
			r.ServerID,
			formatLease(r.LeaseSeconds),
			formatXID(r.XID),
			r.Method,
			r.Reason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatLease(v uint32) string {
	switch v {
	case 0:
		return ""
	case 0xFFFFFFFF:
		return "infinite"
	default:
		return strconv.FormatUint(uint64(v), 10)
	}
}

func formatXID(v uint32) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("0x%08x", v)
}
