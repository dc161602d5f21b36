// Package paychan provides a payment channel lifecycle and work-session
// reconciliation engine for Go applications.
//
// Paychan pays hourly workers through blockchain-native escrow channels: an
// organization deposits funds into a channel, a worker accrues pay off-chain
// as they clock in and out, and the accrued balance is periodically settled
// on-chain via an externally signed claim. Paychan is designed as a library,
// not a service. It provides:
//
//   - A strict channel lifecycle state machine with optimistic versioning
//   - Clock-in/clock-out session tracking with capacity-capped accrual
//   - An append-only balance ledger with deterministic replay
//   - Asynchronous claim settlement via an external wallet signer
//   - A resumable, deduplicating monitor over the network's event stream
//   - Reconciliation that routes every divergence to manual dispute
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/paychan"
//	    "github.com/xraph/paychan/network"
//	    "github.com/xraph/paychan/store/postgres"
//	)
//
//	st, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := network.NewWSClient(network.Config{
//	    Endpoint: "wss://s.altnet.rippletest.net:51233",
//	    Network:  "testnet",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := paychan.New(st,
//	    paychan.WithNetwork("testnet", client, "xrp"),
//	    paychan.WithSigner(mySigner),
//	)
//
//	// Start the engine (begins monitors and background workers)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Channels hold one escrow deposit between an organization and a worker:
//
//	ch, err := engine.CreateChannel(ctx, orgID, workerID,
//	    channel.NetworkTest, paychan.Drops(100_000_000), paychan.Drops(25_000_000))
//
// The channel starts in Draft and becomes Active once the monitor observes
// the escrow funding on-chain. Workers then accrue pay per session:
//
//	sess, err := engine.ClockIn(ctx, orgID, workerID, channel.NetworkTest)
//	// ... work ...
//	sess, err = engine.ClockOut(ctx, orgID, workerID, channel.NetworkTest)
//
// Settlement converts the accrued balance into a confirmed on-chain claim:
//
//	claim, err := engine.InitiateSettlement(ctx, ch.ID)
//
// All monetary calculations use integer arithmetic in the asset's smallest
// unit (drops for XRP). The invariant claimed + accrued <= deposit holds on
// every channel at all times; a clock-out that would exceed it is capped
// and the excess preserved for manual top-up.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	chan_01h2xcejqtf2nbrexx3vqjhp41  // Channel ID
//	sess_01h2xcejqtf2nbrexx3vqjhp41  // Work session ID
//	clm_01h455vb4pex5vsknk084sn02q   // Claim request ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package paychan
