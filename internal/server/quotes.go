package server

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/pricing"
	"github.com/pestline/pestline/internal/quote"
)

// sizesRequest is the body of the quote and service address size updates.
// Absent fields keep the stored value; an empty string clears it.
type sizesRequest struct {
	HomeSizeRange   *string `json:"home_size_range"`
	YardSizeRange   *string `json:"yard_size_range"`
	LinearFeetRange *string `json:"linear_feet_range"`
}

func (b sizesRequest) update() (quote.SizeUpdate, error) {
	for field, v := range map[string]*string{
		"home_size_range":   b.HomeSizeRange,
		"yard_size_range":   b.YardSizeRange,
		"linear_feet_range": b.LinearFeetRange,
	} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := pricing.ParseSizeRange(*v); err != nil {
			return quote.SizeUpdate{}, eris.Wrapf(err, "%s", field)
		}
	}
	return quote.SizeUpdate{Home: b.HomeSizeRange, Yard: b.YardSizeRange, LinearFeet: b.LinearFeetRange}, nil
}

func (s *Server) loadQuote(w http.ResponseWriter, r *http.Request, id string) (*model.Quote, bool) {
	q, err := s.deps.Store.GetQuote(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, eris.Wrapf(err, "server: get quote %s", id))
		return nil, false
	}
	if q == nil {
		writeError(w, r, http.StatusNotFound, "quote_not_found", "quote "+id+" not found")
		return nil, false
	}
	items, err := s.deps.Store.ListLineItems(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, eris.Wrapf(err, "server: list line items %s", id))
		return nil, false
	}
	q.LineItems = items
	return q, true
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	q, ok := s.loadQuote(w, r, chi.URLParam(r, "quoteID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// updateQuote changes a quote's sizes and reprices it. When the quote is
// tied to a service address the new sizes are written there too, which
// reprices every other quote for that address.
func (s *Server) updateQuote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "quoteID")

	var body sizesRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	upd, err := body.update()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	q, err := s.deps.Store.GetQuote(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if q == nil {
		writeError(w, r, http.StatusNotFound, "quote_not_found", "quote "+id+" not found")
		return
	}

	recalculated := false
	if q.ServiceAddressID != "" {
		ids, err := s.deps.Recalc.ForServiceAddress(r.Context(), q.ServiceAddressID, upd)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		recalculated = slices.Contains(ids, id)
	}
	if !recalculated {
		if err := s.deps.Recalc.Recalculate(r.Context(), id, upd); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}

	if q, ok := s.loadQuote(w, r, id); ok {
		writeJSON(w, http.StatusOK, q)
	}
}

func (s *Server) recalculateQuote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "quoteID")
	q, err := s.deps.Store.GetQuote(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if q == nil {
		writeError(w, r, http.StatusNotFound, "quote_not_found", "quote "+id+" not found")
		return
	}
	if err := s.deps.Recalc.Recalculate(r.Context(), id, quote.SizeUpdate{}); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if q, ok := s.loadQuote(w, r, id); ok {
		writeJSON(w, http.StatusOK, q)
	}
}

func (s *Server) updateAddressSizes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "addressID")

	var body sizesRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	upd, err := body.update()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	addr, err := s.deps.Store.GetServiceAddress(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if addr == nil {
		writeError(w, r, http.StatusNotFound, "service_address_not_found", "service address "+id+" not found")
		return
	}

	ids, err := s.deps.Recalc.ForServiceAddress(r.Context(), id, upd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service_address_id": id,
		"recalculated":       ids,
	})
}
