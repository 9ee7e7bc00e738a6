package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/WishPool/internal/ledger"
	"github.com/Kerhoff/WishPool/internal/models"
)

// Server provides the HTTP presentation layer over the contribution
// ledger. Identity is taken from headers set by a fronting authenticator
// (the server performs no authentication itself); admin routes require
// X-Is-Admin: true.
type Server struct {
	coordinator *ledger.Coordinator
	admin       *ledger.Admin
	logger      *logrus.Logger
	mux         *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
// gatherer may be nil to disable the /metrics endpoint.
func NewServer(coordinator *ledger.Coordinator, admin *ledger.Admin, logger *logrus.Logger, gatherer prometheus.Gatherer) *Server {
	s := &Server{coordinator: coordinator, admin: admin, logger: logger, mux: http.NewServeMux()}
	s.routes(gatherer)
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes(gatherer prometheus.Gatherer) {
	// Items
	s.mux.HandleFunc("GET /api/items", s.handleListItems)
	s.mux.HandleFunc("POST /api/items", s.requireAdmin(s.handleCreateItem))
	s.mux.HandleFunc("GET /api/items/{id}", s.handleGetItem)
	s.mux.HandleFunc("PUT /api/items/{id}", s.requireAdmin(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/items/{id}", s.requireAdmin(s.handleDeleteItem))

	// Contributions
	s.mux.HandleFunc("POST /api/items/{id}/contributions", s.handleContribute)
	s.mux.HandleFunc("GET /api/items/{id}/contributions", s.handleGetContributions)

	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// caller is the identity the fronting authenticator vouched for.
type caller struct {
	ID      string
	Name    string
	IsAdmin bool
}

func callerFrom(r *http.Request) caller {
	return caller{
		ID:      r.Header.Get("X-Contributor-Id"),
		Name:    r.Header.Get("X-Contributor-Name"),
		IsAdmin: r.Header.Get("X-Is-Admin") == "true",
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !callerFrom(r).IsAdmin {
			s.respondError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next(w, r)
	}
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into dst and returns an error message
// on failure. The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// respondLedgerError maps the ledger error taxonomy onto HTTP statuses.
func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidSpec):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAlreadyFulfilled),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, ledger.ErrDuplicateAttempt):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrStorageUnavailable):
		s.logger.WithError(err).Error("ledger storage unavailable")
		s.respondError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		s.logger.WithError(err).Error("unexpected ledger error")
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.admin.ListItems(r.Context())
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.admin.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var spec models.ItemSpec
	if ok, msg := s.decodeJSON(r, &spec); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := s.admin.CreateItem(r.Context(), spec)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var spec models.ItemSpec
	if ok, msg := s.decodeJSON(r, &spec); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	item, err := s.admin.UpdateItem(r.Context(), r.PathValue("id"), spec)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		s.respondLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Contributions
// ---------------------------------------------------------------------------

type contributeRequest struct {
	Amount         *decimal.Decimal `json:"amount"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type contributeResponse struct {
	Item   *models.WishlistItem       `json:"item"`
	Record *models.ContributionRecord `json:"record"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	who := callerFrom(r)
	if who.ID == "" {
		s.respondError(w, http.StatusBadRequest, "X-Contributor-Id header is required")
		return
	}

	var req contributeRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	item, record, err := s.coordinator.Contribute(r.Context(), ledger.ContributeRequest{
		ItemID:          r.PathValue("id"),
		ContributorID:   who.ID,
		ContributorName: who.Name,
		Amount:          req.Amount,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, contributeResponse{Item: item, Record: record})
}

func (s *Server) handleGetContributions(w http.ResponseWriter, r *http.Request) {
	records, err := s.admin.Contributions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}
