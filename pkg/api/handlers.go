package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortiblox/slot-listener/internal/types"
	"github.com/fortiblox/slot-listener/pkg/blockstore"
)

// StatusResponse is the response for GET /status.
type StatusResponse struct {
	Backend          string     `json:"backend,omitempty"`
	Commitment       string     `json:"commitment"`
	Watermark        types.Slot `json:"watermark"`
	LatestSlot       types.Slot `json:"latestSlot"`
	Blocks           int        `json:"blocks"`
	Slots            int        `json:"slots"`
	Upgrades         uint64     `json:"upgrades"`
	Conflicts        uint64     `json:"conflicts"`
	SlotReplacements uint64     `json:"slotReplacements"`
	Uptime           string     `json:"uptime"`
	UptimeSeconds    float64    `json:"uptimeSeconds"`
}

// handleBlock handles GET /blocks/{blockhash}.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HashFromBase58(mux.Vars(r)["blockhash"])
	if err != nil {
		writeError(w, "Invalid blockhash", http.StatusBadRequest)
		return
	}

	record, err := s.blocks.Get(hash)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, record)
}

// handleSlot handles GET /slots/{slot}.
func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(mux.Vars(r)["slot"], 10, 64)
	if err != nil {
		writeError(w, "Invalid slot number", http.StatusBadRequest)
		return
	}

	record, err := s.blocks.GetBySlot(slot)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, record)
}

// handleLatest handles GET /blocks/latest?commitment=.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	commitment := s.config.Commitment
	if q := r.URL.Query().Get("commitment"); q != "" {
		parsed, err := types.ParseCommitment(q)
		if err != nil {
			writeError(w, "Invalid commitment", http.StatusBadRequest)
			return
		}
		commitment = parsed
	}

	record, err := s.blocks.Latest(commitment)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, record)
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := s.blocks.Stats()
	uptime := time.Since(s.startTime)

	writeJSON(w, StatusResponse{
		Backend:          s.config.Backend,
		Commitment:       s.config.Commitment.String(),
		Watermark:        stats.Watermark,
		LatestSlot:       stats.LatestSlot,
		Blocks:           stats.Blocks,
		Slots:            stats.Slots,
		Upgrades:         stats.Upgrades,
		Conflicts:        stats.Conflicts,
		SlotReplacements: stats.SlotReplacements,
		Uptime:           uptime.Truncate(time.Second).String(),
		UptimeSeconds:    uptime.Seconds(),
	})
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blockstore.ErrNotFound):
		writeError(w, "Block not found", http.StatusNotFound)
	case errors.Is(err, blockstore.ErrEmpty):
		writeError(w, "No block stored at this commitment", http.StatusNotFound)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
