package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"nameshare/crypto"
	"nameshare/native/collections"
	"nameshare/native/snapshot"
	"nameshare/services/eventlog"
)

// LedgerReader is the read-only view of the ledger service exposed over HTTP.
type LedgerReader interface {
	Ledgers() []string
	LedgerState(ledger string) (*snapshot.State, error)
	Collections() ([]*collections.Collection, error)
}

// EventReader lists journaled events.
type EventReader interface {
	List(limit int) ([]eventlog.EventRecord, error)
}

type Config struct {
	Ledger LedgerReader
	Events EventReader
	// NotFound lists errors reported as 404.
	NotFound []error
	// TracerProvider receives the request spans. The global provider is used
	// when nil.
	TracerProvider trace.TracerProvider
}

type collectionView struct {
	ID                    string `json:"id"`
	PayoutTarget          string `json:"payoutTarget"`
	ReferralShare         uint32 `json:"referralShare"`
	CommunityShare        uint32 `json:"communityShare"`
	EcosystemShare        uint32 `json:"ecosystemShare"`
	ProtocolShare         uint32 `json:"protocolShare"`
	HolderShare           uint32 `json:"holderShare"`
	PoolsIntoHolderLedger bool   `json:"poolsIntoHolderLedger"`
	RegisteredAt          uint64 `json:"registeredAt"`
}

func viewCollection(c *collections.Collection) collectionView {
	return collectionView{
		ID:                    c.ID,
		PayoutTarget:          crypto.Address(c.PayoutTarget).String(),
		ReferralShare:         c.ReferralShare,
		CommunityShare:        c.CommunityShare,
		EcosystemShare:        c.EcosystemShare,
		ProtocolShare:         c.ProtocolShare,
		HolderShare:           c.HolderShare(),
		PoolsIntoHolderLedger: c.PoolsIntoHolderLedger,
		RegisteredAt:          c.RegisteredAt,
	}
}

// New builds the operations router: health, Prometheus metrics and read-only
// ledger inspection. Every request is traced through otelhttp.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Ledger != nil {
		r.Get("/ledgers", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, cfg.Ledger.Ledgers())
		})
		r.Get("/ledgers/{ledger}", func(w http.ResponseWriter, r *http.Request) {
			st, err := cfg.Ledger.LedgerState(chi.URLParam(r, "ledger"))
			if err != nil {
				writeError(w, cfg.NotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"pool":             st.Pool.String(),
				"unclaimedPool":    st.UnclaimedPool.String(),
				"rewardPerUnit":    st.LastReward.String(),
				"supply":           st.LastSupply,
				"watermark":        st.LastSnapshotPoint,
				"lastSnapshotTime": st.LastSnapshotTime,
				"epoch":            st.Epoch,
				"claimed":          st.Claimed.String(),
				"expiredTotal":     st.ExpiredTotal.String(),
				"depositedTotal":   st.DepositedTotal.String(),
			})
		})
		r.Get("/collections", func(w http.ResponseWriter, r *http.Request) {
			list, err := cfg.Ledger.Collections()
			if err != nil {
				writeError(w, cfg.NotFound, err)
				return
			}
			views := make([]collectionView, 0, len(list))
			for _, c := range list {
				views = append(views, viewCollection(c))
			}
			writeJSON(w, http.StatusOK, views)
		})
	}
	if cfg.Events != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			recs, err := cfg.Events.List(limit)
			if err != nil {
				writeError(w, cfg.NotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, recs)
		})
	}
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return otelhttp.NewHandler(r, "nameshare-ops", opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, notFound []error, err error) {
	status := http.StatusInternalServerError
	if matches(err, notFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
