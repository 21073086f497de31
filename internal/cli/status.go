package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show RPC provider health and the chain head",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	app := newApp()
	defer app.Close()

	ctx, cancel := commandContext(30 * time.Second)
	defer cancel()

	report := app.Health(ctx)

	fmt.Printf("chain %s: %s (head %d)\n", report.ChainID, report.SystemStatus, report.LatestBlock)
	if report.HeadError != "" {
		fmt.Printf("head lookup failed: %s\n", report.HeadError)
	}

	names := make([]string, 0, len(report.Providers))
	for name := range report.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATUS\tSTATE\tCIRCUIT\tLATENCY\tERROR RATE")
	for _, name := range names {
		p := report.Providers[name]
		circuit := "closed"
		if p.Circuit {
			circuit = "open"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%.2f\n", name, p.Status, p.State, circuit, p.LatencyMS, p.ErrorRate)
	}
	_ = w.Flush()
}
