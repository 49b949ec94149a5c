package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/pricing"
)

type sizeOptionsResponse struct {
	CompanyID     string               `json:"company_id"`
	ServicePlanID string               `json:"service_plan_id,omitempty"`
	Home          []pricing.SizeOption `json:"home"`
	Yard          []pricing.SizeOption `json:"yard"`
	LinearFeet    []pricing.SizeOption `json:"linear_feet"`
}

// sizeOptions lists a company's size brackets, with a plan's increases when
// service_plan_id is given.
func (s *Server) sizeOptions(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	planID := r.URL.Query().Get("service_plan_id")

	settings, err := s.deps.Store.GetPricingSettings(r.Context(), companyID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if settings == nil {
		writeError(w, r, http.StatusNotFound, "pricing_settings_not_found", "no pricing settings for company "+companyID)
		return
	}
	if err := settings.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_pricing_settings", err.Error())
		return
	}

	var home, yard, linear *model.SizePricing
	if planID != "" {
		plan, err := s.deps.Store.GetServicePlan(r.Context(), planID)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if plan == nil || plan.CompanyID != companyID {
			writeError(w, r, http.StatusNotFound, "service_plan_not_found", "service plan "+planID+" not found")
			return
		}
		home, yard, linear = plan.HomeSizePricing, plan.YardSizePricing, plan.LinearFeetPricing
	}

	resp := sizeOptionsResponse{
		CompanyID:     companyID,
		ServicePlanID: planID,
		Home:          pricing.GenerateHomeSizeOptions(*settings, home),
		Yard:          pricing.GenerateYardSizeOptions(*settings, yard),
		LinearFeet:    pricing.GenerateLinearFeetOptions(*settings, linear),
	}
	if resp.LinearFeet == nil {
		resp.LinearFeet = []pricing.SizeOption{}
	}
	writeJSON(w, http.StatusOK, resp)
}
