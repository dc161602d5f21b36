package paychan_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/paychan"
	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/config"
	"github.com/xraph/paychan/store/memory"
	"github.com/xraph/paychan/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		signer := &fakeSigner{}
		client := &fakeNetClient{}

		// Initialize the engine
		engine := paychan.New(store,
			paychan.WithLogger(slog.Default()),
			paychan.WithSigner(signer),
			paychan.WithNetwork("testnet", client, "xrp"),
			paychan.WithClaimTimeout(120*time.Second),
		)

		// Start the engine
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		// Open a channel: org escrows 1 XRP, worker earns 0.1 XRP/hour
		ch, err := engine.CreateChannel(ctx, "org_123", "worker_456", channel.NetworkTest,
			types.Drops(1_000_000), types.Drops(100_000))
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("channel %s created in state %s\n", ch.ID, ch.State)

		// The channel activates when the escrow deposit is observed
		// on-chain; until then work cannot start.
		if _, err := engine.ClockIn(ctx, "org_123", "worker_456", channel.NetworkTest); err != nil {
			log.Printf("clock-in before funding refused: %v\n", err)
		}

		// Inspect status and audit trail
		status, err := engine.GetChannelStatus(ctx, ch.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("remaining capacity: %s\n", status.Channel.RemainingCapacity())

		entries, err := engine.Entries(ctx, ch.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("ledger entries: %d\n", len(entries))
	})

	t.Run("ConfigExample", func(t *testing.T) {
		// Loading a missing file yields defaults; connections are lazy,
		// nothing dials until Start.
		cfg, err := config.Load("")
		if err != nil {
			t.Fatal(err)
		}

		engine := paychan.New(memory.New(), paychan.FromConfig(cfg, slog.Default())...)
		_ = engine
	})

	t.Run("ListChannelsExample", func(t *testing.T) {
		store := memory.New()
		engine := paychan.New(store)
		ctx := context.Background()

		if _, err := engine.CreateChannel(ctx, "org_123", "worker_456", channel.NetworkTest,
			types.Drops(1_000_000), types.Drops(100_000)); err != nil {
			t.Fatal(err)
		}

		channels, err := engine.ListChannels(ctx, paychan.ChannelFilter{
			OrganizationID: "org_123",
			Limit:          10,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(channels) != 1 {
			t.Fatalf("channels = %d, want 1", len(channels))
		}
	})
}
