package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/nftscan/internal/indexing/api"
)

var queryTimeout time.Duration

var ownedCmd = &cobra.Command{
	Use:   "owned <address>",
	Short: "List the tokens currently owned by an address",
	Args:  cobra.ExactArgs(1),
	Run:   runOwned,
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "List the marketplace entries that are currently listed",
	Args:  cobra.NoArgs,
	Run:   runListings,
}

func init() {
	for _, c := range []*cobra.Command{ownedCmd, listingsCmd} {
		c.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "give up after this long")
		rootCmd.AddCommand(c)
	}
}

func runOwned(cmd *cobra.Command, args []string) {
	app := newApp()
	defer app.Close()

	ctx, cancel := commandContext(queryTimeout)
	defer cancel()

	tokens, err := app.Service().OwnedTokens(ctx, args[0])
	if err != nil {
		fail("Ownership query failed", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "TOKEN ID\tOWNER")
	for _, t := range tokens {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", t.ID, t.Owner)
	}
	_ = w.Flush()
	fmt.Printf("%d token(s)\n", len(tokens))
}

func runListings(cmd *cobra.Command, args []string) {
	app := newApp()
	defer app.Close()

	ctx, cancel := commandContext(queryTimeout)
	defer cancel()

	listings, err := app.Service().Listings(ctx)
	if err != nil {
		fail("Listings query failed", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "TOKEN ID\tSELLER\tPRICE (ETH)")
	for _, l := range listings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", l.ID, l.Seller, api.FormatEther(l.Price))
	}
	_ = w.Flush()
	fmt.Printf("%d listing(s)\n", len(listings))
}
