package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/services/scraper"
)

// SalonHandler exposes stylist and coupon lookups for the post form
type SalonHandler struct {
	scraper interfaces.SalonScraper
	logger  arbor.ILogger
}

// NewSalonHandler creates a new SalonHandler
func NewSalonHandler(salonScraper interfaces.SalonScraper, logger arbor.ILogger) *SalonHandler {
	return &SalonHandler{
		scraper: salonScraper,
		logger:  logger,
	}
}

// StylistsHandler handles GET /api/salon/stylists?url=
func (h *SalonHandler) StylistsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	salonURL := r.URL.Query().Get("url")
	stylists, err := h.scraper.Stylists(r.Context(), salonURL)
	if err != nil {
		h.writeError(w, salonURL, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"stylists": stylists})
}

// CouponsHandler handles GET /api/salon/coupons?url=
func (h *SalonHandler) CouponsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	salonURL := r.URL.Query().Get("url")
	coupons, err := h.scraper.Coupons(r.Context(), salonURL)
	if err != nil {
		h.writeError(w, salonURL, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"coupons": coupons})
}

func (h *SalonHandler) writeError(w http.ResponseWriter, salonURL string, err error) {
	if errors.Is(err, scraper.ErrInvalidSalonURL) {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Warn().Err(err).Str("salon_url", salonURL).Msg("Salon scrape failed")
	WriteError(w, http.StatusBadGateway, "Failed to read salon page")
}
