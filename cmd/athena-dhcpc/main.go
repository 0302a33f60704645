// athena-dhcpc is a poll-driven DHCPv4 client for one interface.
package main

import (
	"os"

	"github.com/alecthomas/kong"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var cli struct {
	Run     RunCmd     `cmd:"" default:"withargs" help:"Acquire and hold a lease on the configured interface."`
	History HistoryCmd `cmd:"" help:"Show the lease journal."`
	Version VersionCmd `cmd:"" help:"Print the version of athena-dhcpc."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("athena-dhcpc"),
		kong.Description("Poll-driven DHCPv4 client."),
		kong.UsageOnError(),
		kong.Vars(journalVars),
	)
	if err := ctx.Run(); err != nil {
		os.Exit(1)
	}
}
