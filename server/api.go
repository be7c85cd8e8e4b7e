package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/pragma-labs/feed-relayer/calldata"
	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/log"
	"github.com/pragma-labs/feed-relayer/store"
)

const streamPingInterval = 30 * time.Second

type CalldataResponse struct {
	Calldata        *calldata.Calldata `json:"calldata"`
	EncodedCalldata string             `json:"encoded_calldata"`
}

type FeedResponse struct {
	ID         string            `json:"id"`
	AssetClass string            `json:"asset_class"`
	FeedType   string            `json:"feed_type"`
	PairID     string            `json:"pair_id"`
	Registered bool              `json:"registered"`
	Latest     *store.UpdateInfo `json:"latest,omitempty"`
}

type ValidatorResponse struct {
	Validator       string `json:"validator"`
	StorageLocation string `json:"storage_location"`
}

type ChainResponse struct {
	Chain      string           `json:"chain"`
	Validators map[string]uint8 `json:"validators"`
}

// errorStatus maps a calldata error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, calldata.ErrInvalidFeedID):
		return http.StatusBadRequest, "invalid_feed_id"
	case errors.Is(err, calldata.ErrChainNotSupported):
		return http.StatusBadRequest, "chain_not_supported"
	case errors.Is(err, calldata.ErrDispatchNotFound):
		return http.StatusNotFound, "dispatch_not_found"
	case errors.Is(err, calldata.ErrValidatorNotFound):
		return http.StatusNotFound, "validator_not_found"
	case errors.Is(err, calldata.ErrInconsistentCheckpoint):
		return http.StatusConflict, "inconsistent_checkpoint"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (srv *APIServer) GetCalldata(w http.ResponseWriter, r *http.Request) {
	chain := chi.URLParam(r, "chain")
	feedID := chi.URLParam(r, "feed_id")

	cd, err := srv.builder.BuildFromHex(feedID, chain)
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusInternalServerError {
			log.GetLogger().WithModule("server").WithChain(chain).ErrorContext(r.Context(), "failed to build calldata", err, "feed_id", feedID)
		}
		_ = Error(w, r, status, code, err.Error(), nil)
		return
	}
	_ = JSON(w, http.StatusOK, CalldataResponse{
		Calldata:        cd,
		EncodedCalldata: hex.EncodeToString(cd.Bytes()),
	}, nil)
}

func (srv *APIServer) Feeds(w http.ResponseWriter, r *http.Request) {
	registered := srv.storage.Registry.IDs()
	ids := slices.Concat(registered, srv.storage.Latest.FeedIDs())
	slices.SortFunc(ids, func(a, b feed.ID) int { return slices.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	out := make([]FeedResponse, 0, len(ids))
	for _, id := range ids {
		f, err := feed.DecodeID(id)
		if err != nil {
			continue
		}
		resp := FeedResponse{
			ID:         id.String(),
			AssetClass: f.AssetClass.String(),
			FeedType:   f.FeedType.String(),
			PairID:     f.PairID,
			Registered: srv.storage.Registry.Contains(id),
		}
		if info, ok := srv.storage.Latest.Get(id); ok {
			resp.Latest = &info
		}
		out = append(out, resp)
	}
	_ = JSON(w, http.StatusOK, out, nil)
}

func (srv *APIServer) Validators(w http.ResponseWriter, r *http.Request) {
	all := srv.storage.Validators.All()
	out := make([]ValidatorResponse, 0, len(all))
	for _, vf := range all {
		out = append(out, ValidatorResponse{Validator: vf.Validator.String(), StorageLocation: vf.Location})
	}
	_ = JSON(w, http.StatusOK, out, nil)
}

func (srv *APIServer) Chains(w http.ResponseWriter, r *http.Request) {
	sets := srv.builder.ValidatorSets()
	out := make([]ChainResponse, 0, len(sets))
	for _, chain := range sets.Chains() {
		validators := make(map[string]uint8, len(sets[chain]))
		for v, idx := range sets[chain] {
			validators[v.String()] = idx
		}
		out = append(out, ChainResponse{Chain: chain, Validators: validators})
	}
	_ = JSON(w, http.StatusOK, out, nil)
}

func (srv *APIServer) Healthz(w http.ResponseWriter, r *http.Request) {
	_ = JSON(w, http.StatusOK, map[string]any{"alive": true}, nil)
}

func (srv *APIServer) Readiness(w http.ResponseWriter, r *http.Request) {
	if srv.broadcaster != nil {
		if err := srv.broadcaster.Health(r.Context()); err != nil {
			_ = Error(w, r, http.StatusServiceUnavailable, "not_ready", err.Error(), nil)
			return
		}
	}
	_ = JSON(w, http.StatusOK, map[string]any{
		"ready":      true,
		"validators": srv.storage.Validators.Len(),
		"unsigned":   srv.storage.Unsigned.Len(),
	}, nil)
}

// StreamCalldata sends server-sent events carrying fresh calldata for the
// feeds listed in the feed_ids query parameter, whenever they are updated.
func (srv *APIServer) StreamCalldata(w http.ResponseWriter, r *http.Request) {
	chain := chi.URLParam(r, "chain")
	if srv.hub == nil {
		_ = Error(w, r, http.StatusNotImplemented, "stream_disabled", "calldata stream is disabled", nil)
		return
	}
	if _, ok := srv.builder.ValidatorSets()[chain]; !ok {
		_ = Error(w, r, http.StatusBadRequest, "chain_not_supported", fmt.Sprintf("chain %q is not supported", chain), nil)
		return
	}
	wanted := make(map[feed.ID]struct{})
	for _, raw := range strings.Split(r.URL.Query().Get("feed_ids"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := feed.ParseID(raw)
		if err != nil {
			_ = Error(w, r, http.StatusBadRequest, "invalid_feed_id", err.Error(), nil)
			return
		}
		wanted[id] = struct{}{}
	}
	if len(wanted) == 0 {
		_ = Error(w, r, http.StatusBadRequest, "invalid_feed_id", "feed_ids is required", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = Error(w, r, http.StatusInternalServerError, "internal", "streaming is not supported", nil)
		return
	}

	updates, cancel := srv.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-updates:
			if !ok {
				return
			}
			for _, id := range msg.FeedIDs {
				if _, ok := wanted[id]; !ok {
					continue
				}
				writeEvent(w, srv.calldataEvent(id, chain))
			}
			flusher.Flush()
		}
	}
}

type streamEvent struct {
	name string
	data any
}

func (srv *APIServer) calldataEvent(id feed.ID, chain string) streamEvent {
	cd, err := srv.builder.Build(id, chain)
	if err != nil {
		_, code := errorStatus(err)
		return streamEvent{name: "error", data: APIError{Code: code, Message: err.Error(), Details: id.String()}}
	}
	return streamEvent{name: "calldata", data: CalldataResponse{Calldata: cd, EncodedCalldata: hex.EncodeToString(cd.Bytes())}}
}

func writeEvent(w http.ResponseWriter, ev streamEvent) {
	bz, err := json.Marshal(ev.data)
	if err != nil {
		log.GetLogger().WithModule("server").Error("failed to encode stream event", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, bz)
}
