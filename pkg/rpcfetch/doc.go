// Package rpcfetch implements chain.Source over hand-rolled HTTP JSON-RPC.
//
// It is the lightweight alternative to the solana-go backend in rpcclient:
// requests are plain rpcRequest envelopes, responses are decoded into the
// few fields the listener needs, and everything else in a block is skipped
// by the decoder.
//
// # Architecture
//
//   - Pool: round-robin endpoint selection with health tracking
//   - RPCClient: JSON-RPC calls over a gzip-aware transport, optionally rate limited
//   - Source: maps RPC responses and errors onto chain.Source semantics
//
// # Usage
//
//	pool := rpcfetch.NewSimplePool([]string{"https://api.mainnet-beta.solana.com"})
//	source, err := rpcfetch.NewSource(pool, rpcfetch.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	record, err := source.FetchBlock(ctx, slot, types.CommitmentFinalized)
//
// # Skipped Slots
//
// A null getBlock result and the RPC error codes -32004, -32007 and -32009
// are reported as chain.ErrSkipped. So is a block without a blockHeight or
// without the transaction data the configured detail level should carry.
// Every other failure is a *chain.TransportError and is safe to retry.
package rpcfetch
