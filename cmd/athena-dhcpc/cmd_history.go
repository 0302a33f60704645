package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/config"
	"github.com/athena-dhcpd/athena-dhcpc/internal/journal"
)

type HistoryCmd struct {
	DB     string        `name:"db" type:"path" help:"Path to the lease journal database." default:"${journal_db}"`
	Limit  int           `short:"n" default:"20" help:"Maximum number of records to show."`
	Event  string        `help:"Only show records of this event type (e.g. lease.bound)."`
	IP     string        `name:"ip" help:"Only show records for this address."`
	Since  time.Duration `help:"Only show records newer than this (e.g. 24h)."`
	Format string        `enum:"table,csv,json" default:"table" help:"Output format: table, csv or json."`
}

func (h *HistoryCmd) Run() error {
	db, err := journal.Open(h.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v (is athena-dhcpc running with this journal?)\n", err)
		return err
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	j, err := journal.New(db, nil, 0, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}

	params := journal.QueryParams{Event: h.Event, IP: h.IP, Limit: h.Limit}
	if h.Since > 0 {
		params.From = time.Now().Add(-h.Since)
	}
	records, err := j.Query(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "querying journal: %v\n", err)
		return err
	}

	switch h.Format {
	case "csv":
		err = journal.WriteCSV(os.Stdout, records)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(records)
	default:
		err = writeTable(os.Stdout, records)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "writing output: %v\n", err)
	}
	return err
}

func writeTable(w io.Writer, records []journal.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tEVENT\tIP\tGATEWAY\tSERVER\tLEASE\tDETAIL")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, shortTime(r.Timestamp), r.Event, r.IP, r.Router, r.ServerID,
			leaseText(r.LeaseSeconds), detail(r))
	}
	return tw.Flush()
}

func shortTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func leaseText(secs uint32) string {
	switch secs {
	case 0:
		return "-"
	case 0xFFFFFFFF:
		return "infinite"
	default:
		return (time.Duration(secs) * time.Second).String()
	}
}

func detail(r journal.Record) string {
	switch {
	case r.OldIP != "":
		return "was " + r.OldIP
	case r.Method != "":
		return r.Method
	default:
		return r.Reason
	}
}

// journalVars supplies defaults for kong flag interpolation.
var journalVars = map[string]string{
	"journal_db": config.DefaultJournalDB,
}
