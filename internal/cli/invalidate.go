package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/vietddude/nftscan/internal/core/domain"
	redisclient "github.com/vietddude/nftscan/internal/infra/redis"
)

var (
	invalidateKind string
	invalidateTx   string
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [address]",
	Short: "Mark cached queries stale on every running replica",
	Long: `Publishes an invalidation on the Redis channel. Without an address every
query of the given kind is marked stale; without a kind every kind is.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInvalidate,
}

func init() {
	invalidateCmd.Flags().StringVar(&invalidateKind, "kind", "", "query kind to invalidate (owned, listings)")
	invalidateCmd.Flags().StringVar(&invalidateTx, "tx", "", "confirmed transaction hash, published once")
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) {
	cfg, err := setup()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	inv := domain.Invalidation{Kind: domain.QueryKind(invalidateKind), TxHash: invalidateTx}
	if len(args) == 1 {
		if !common.IsHexAddress(args[0]) {
			slog.Error("Invalid address", "address", args[0])
			os.Exit(1)
		}
		inv.Address = args[0]
	}
	switch inv.Kind {
	case "", domain.QueryOwned, domain.QueryListings:
	default:
		slog.Error("Unknown query kind", "kind", inv.Kind)
		os.Exit(1)
	}

	if !cfg.Redis.Enabled() {
		slog.Error("redis.url is not configured")
		os.Exit(1)
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := commandContext(10 * time.Second)
	defer cancel()

	first, err := client.MarkSeen(ctx, inv.TxHash, 10*time.Minute)
	if err != nil {
		slog.Error("Failed to record transaction", "error", err)
		os.Exit(1)
	}
	if !first {
		fmt.Printf("transaction %s already published\n", inv.TxHash)
		return
	}
	if err := client.Publish(ctx, inv); err != nil {
		slog.Error("Failed to publish invalidation", "error", err)
		os.Exit(1)
	}
	fmt.Println("invalidation published")
}
