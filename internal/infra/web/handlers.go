package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/infra/logging"
)

type clientDTO struct {
	ID        string    `json:"id"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	DaysLeft  int       `json:"days_left"`
	Owner     int64     `json:"owner,omitempty"`
}

func toClientDTO(c *model.ClientRecord, now time.Time) clientDTO {
	return clientDTO{
		ID:        c.ID,
		Plan:      c.Plan,
		ExpiresAt: c.ExpiresAt,
		Active:    c.IsActive(now),
		DaysLeft:  model.DaysRemaining(c.ExpiresAt, now),
		Owner:     c.Owner,
	}
}

type createClientRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type renewClientRequest struct {
	Plan string `json:"plan"` // empty keeps the current plan
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.lifecycle.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pending, err := s.purchase.Pending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"total":             st.Active + st.Expired,
		"active":            st.Active,
		"expired":           st.Expired,
		"invalid":           st.Invalid,
		"pending_purchases": len(pending),
	})
}

func (s *Server) plans(w http.ResponseWriter, r *http.Request) {
	type planDTO struct {
		Key   string `json:"key"`
		Name  string `json:"name"`
		Days  int    `json:"days"`
		Hours int    `json:"hours"`
	}
	plans := s.lifecycle.Plans()
	out := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, planDTO{Key: p.Key, Name: p.Name, Days: p.Days, Hours: p.Hours})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// listClients accepts ?status=active|expired|expiring.
func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := r.URL.Query().Get("status")

	var (
		recs []*model.ClientRecord
		err  error
	)
	if status == "expiring" {
		recs, err = s.lifecycle.Expiring(ctx, s.expiringWindow)
	} else {
		recs, err = s.lifecycle.List(ctx)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	now := time.Now()
	items := make([]clientDTO, 0, len(recs))
	for _, c := range recs {
		switch {
		case status == "active" && !c.IsActive(now):
			continue
		case status == "expired" && c.IsActive(now):
			continue
		}
		items = append(items, toClientDTO(c, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c, time.Now()))
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Plan == "" {
		writeError(w, http.StatusBadRequest, "name and plan are required")
		return
	}
	plan, err := s.resolvePlan(req.Plan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, art, err := s.lifecycle.Create(r.Context(), req.Name, plan, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := struct {
		clientDTO
		ConfPath string `json:"conf_path"`
		QRPath   string `json:"qr_path,omitempty"`
	}{clientDTO: toClientDTO(c, time.Now()), ConfPath: art.ConfPath, QRPath: art.QRPath}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) renewClient(w http.ResponseWriter, r *http.Request) {
	var req renewClientRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	plan := ""
	if req.Plan != "" {
		var err error
		if plan, err = s.resolvePlan(req.Plan); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	c, err := s.lifecycle.Renew(r.Context(), chi.URLParam(r, "id"), plan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c, time.Now()))
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	removed, err := s.lifecycle.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := s.purchase.Pending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*model.PendingPurchase{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (s *Server) approvePurchase(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterParam(w, r)
	if !ok {
		return
	}
	c, err := s.purchase.Approve(r.Context(), s.approverID, requester)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c, time.Now()))
}

func (s *Server) rejectPurchase(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterParam(w, r)
	if !ok {
		return
	}
	if err := s.purchase.Reject(r.Context(), s.approverID, requester); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requesterParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requester"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid requester id")
		return 0, false
	}
	return id, true
}

// resolvePlan accepts a plan key or a plan name.
func (s *Server) resolvePlan(v string) (string, error) {
	for _, p := range s.lifecycle.Plans() {
		if p.Key == v || p.Name == v {
			return p.Name, nil
		}
	}
	return "", domain.ErrInvalidPlan
}

// fail maps domain errors to HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var perr *domain.ProvisioningError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidPlan), errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrClientExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoPendingPurchase), errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &perr), errors.Is(err, domain.ErrArtifactMissing):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
