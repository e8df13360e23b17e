package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/blockstore"
	"github.com/fortiblox/slot-listener/pkg/chain"
	"github.com/fortiblox/slot-listener/pkg/chain/chaintest"
	"github.com/fortiblox/slot-listener/pkg/scheduler"
)

type rpcReply struct {
	result interface{}
	code   int
	msg    string
}

// newServer answers every JSON-RPC request with reply(method). The last
// request's params are kept in *params.
func newServer(t *testing.T, params *[]interface{}, reply func(method string) rpcReply) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []interface{}   `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if params != nil {
			*params = req.Params
		}

		out := reply(req.Method)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if out.code != 0 {
			resp["error"] = map[string]interface{}{"code": out.code, "message": out.msg}
		} else {
			resp["result"] = out.result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, url string, details types.TransactionDetails) *Client {
	t.Helper()
	client, err := New(Config{Endpoint: url, TransactionDetails: details})
	require.NoError(t, err)
	return client
}

func block(slot uint64, txs int) map[string]interface{} {
	transactions := make([]interface{}, txs)
	for i := range transactions {
		transactions[i] = map[string]interface{}{
			"transaction": []interface{}{"AQID", "base64"},
		}
	}
	return map[string]interface{}{
		"blockhash":         chaintest.HashForSlot(slot).String(),
		"previousBlockhash": chaintest.HashForSlot(slot - 1).String(),
		"parentSlot":        slot - 1,
		"blockHeight":       slot - 10,
		"transactions":      transactions,
	}
}

func signature(b byte) string {
	sig := make([]byte, 64)
	for i := range sig {
		sig[i] = b
	}
	return base58.Encode(sig)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Endpoint: "http://localhost:8899", TransactionDetails: "everything"})
	assert.Error(t, err)

	client, err := New(Config{Endpoint: "http://localhost:8899"})
	require.NoError(t, err)
	assert.Equal(t, types.TransactionDetailsFull, client.details)
}

func TestCurrentSlot(t *testing.T) {
	var params []interface{}
	server := newServer(t, &params, func(method string) rpcReply {
		assert.Equal(t, "getSlot", method)
		return rpcReply{result: 4242}
	})
	client := newClient(t, server.URL, "")

	slot, err := client.CurrentSlot(context.Background(), types.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, types.Slot(4242), slot)
	assert.Equal(t, []interface{}{map[string]interface{}{"commitment": "confirmed"}}, params)
}

func TestSlotsSinceExcludesFrom(t *testing.T) {
	server := newServer(t, nil, func(method string) rpcReply {
		assert.Equal(t, "getBlocks", method)
		return rpcReply{result: []uint64{100, 101, 102, 103}}
	})
	client := newClient(t, server.URL, "")

	slots, err := client.SlotsSince(context.Background(), 100, types.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, []types.Slot{101, 102, 103}, slots)
}

func TestFetchBlock(t *testing.T) {
	var params []interface{}
	server := newServer(t, &params, func(method string) rpcReply {
		assert.Equal(t, "getBlock", method)
		return rpcReply{result: block(101, 3)}
	})
	client := newClient(t, server.URL, types.TransactionDetailsFull)

	record, err := client.FetchBlock(context.Background(), 101, types.CommitmentFinalized)
	require.NoError(t, err)

	assert.Equal(t, chaintest.HashForSlot(101), record.Blockhash)
	assert.Equal(t, uint64(91), record.Height)
	assert.Equal(t, types.CommitmentFinalized, record.Commitment)
	require.NotNil(t, record.ParentSlot)
	assert.Equal(t, types.Slot(100), *record.ParentSlot)
	require.NotNil(t, record.TxCount)
	assert.Equal(t, uint64(3), *record.TxCount)

	require.Len(t, params, 2)
	opts, ok := params[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "base64", opts["encoding"])
	assert.Equal(t, "full", opts["transactionDetails"])
	assert.Equal(t, "finalized", opts["commitment"])
	assert.Equal(t, false, opts["rewards"])
	assert.Equal(t, float64(0), opts["maxSupportedTransactionVersion"])
}

func TestFetchBlockSignatures(t *testing.T) {
	result := block(130, 0)
	delete(result, "transactions")
	result["signatures"] = []string{signature(1), signature(2)}

	server := newServer(t, nil, func(string) rpcReply {
		return rpcReply{result: result}
	})
	client := newClient(t, server.URL, types.TransactionDetailsSignatures)

	record, err := client.FetchBlock(context.Background(), 130, types.CommitmentFinalized)
	require.NoError(t, err)
	require.NotNil(t, record.TxCount)
	assert.Equal(t, uint64(2), *record.TxCount)
}

func TestFetchBlockSkipped(t *testing.T) {
	noHeight := block(110, 1)
	delete(noHeight, "blockHeight")

	noTransactions := block(110, 1)
	delete(noTransactions, "transactions")

	tests := []struct {
		name  string
		reply rpcReply
	}{
		{"null result", rpcReply{}},
		{"slot skipped", rpcReply{code: chain.CodeSlotSkipped, msg: "Slot 110 was skipped"}},
		{"block not available", rpcReply{code: chain.CodeBlockNotAvailable, msg: "Block not available for slot 110"}},
		{"long-term storage", rpcReply{code: chain.CodeLongTermStorageSlotSkipped, msg: "Slot 110 was skipped, or missing in long-term storage"}},
		{"missing block height", rpcReply{result: noHeight}},
		{"missing transactions", rpcReply{result: noTransactions}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, nil, func(string) rpcReply { return tt.reply })
			client := newClient(t, server.URL, types.TransactionDetailsFull)

			_, err := client.FetchBlock(context.Background(), 110, types.CommitmentFinalized)
			require.Error(t, err)
			assert.True(t, chain.IsSkipped(err), "got %v", err)
		})
	}
}

func TestFetchBlockTransportError(t *testing.T) {
	server := newServer(t, nil, func(string) rpcReply {
		return rpcReply{code: -32000, msg: "node is behind"}
	})
	client := newClient(t, server.URL, types.TransactionDetailsFull)

	_, err := client.FetchBlock(context.Background(), 140, types.CommitmentFinalized)
	require.Error(t, err)
	assert.False(t, chain.IsSkipped(err))
	assert.True(t, chain.IsRetryable(err))

	var transportErr *chain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, chain.OpFetchBlock, transportErr.Op)
}

func TestCurrentSlotUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newClient(t, url, "")
	_, err := client.CurrentSlot(context.Background(), types.CommitmentFinalized)
	assert.True(t, chain.IsRetryable(err))
}

func TestFetchBlockZeroBlockhash(t *testing.T) {
	result := block(150, 1)
	result["blockhash"] = types.Hash{}.String()

	server := newServer(t, nil, func(string) rpcReply {
		return rpcReply{result: result}
	})
	client := newClient(t, server.URL, types.TransactionDetailsFull)

	_, err := client.FetchBlock(context.Background(), 150, types.CommitmentFinalized)
	require.ErrorIs(t, err, chain.ErrZeroBlockhash)
	assert.True(t, chain.IsRetryable(err))
	assert.False(t, chain.IsSkipped(err))
}

func TestNullBlockIsFetchedOnce(t *testing.T) {
	var blockCalls atomic.Int64
	server := newServer(t, nil, func(method string) rpcReply {
		switch method {
		case "getBlocks":
			return rpcReply{result: []uint64{110}}
		case "getBlock":
			blockCalls.Add(1)
			return rpcReply{}
		}
		return rpcReply{code: -32601, msg: "method not found"}
	})
	client := newClient(t, server.URL, types.TransactionDetailsFull)

	config := scheduler.DefaultConfig()
	config.PollInterval = time.Millisecond
	store := blockstore.NewEmpty()
	sched, err := scheduler.New(client, store, config, nil, zerolog.Nop())
	require.NoError(t, err)

	state := scheduler.NewState(109)
	var skipped, requeued int
	for i := 0; i < 5; i++ {
		var report scheduler.Report
		state, report, err = sched.Cycle(context.Background(), state)
		require.NoError(t, err)
		skipped += report.Skipped
		requeued += report.Requeued
	}

	assert.Equal(t, int64(1), blockCalls.Load())
	assert.Equal(t, 1, skipped)
	assert.Zero(t, requeued)
	assert.Zero(t, state.Queue.Len())
	assert.Zero(t, store.Len())
}
