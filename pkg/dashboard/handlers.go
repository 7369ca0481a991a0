package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/illmade-knight/go-newtab/pkg/background"
	"github.com/illmade-knight/go-newtab/pkg/cacheaside"
)

// ImagePath is the route prefix under which displayed images are served.
const ImagePath = "/api/background/image/"

// Handlers exposes a Dashboard over HTTP.
type Handlers struct {
	dashboard *Dashboard
	handles   *background.Handles
}

// NewHandlers creates the HTTP handlers. handles tracks the image bytes
// currently on display.
func NewHandlers(d *Dashboard, handles *background.Handles) *Handlers {
	return &Handlers{dashboard: d, handles: handles}
}

// Register adds every route to mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard", h.getDashboard)
	mux.HandleFunc("GET /api/background", h.getBackground)
	mux.HandleFunc("GET "+ImagePath+"{handle}", h.getImage)
	mux.HandleFunc("DELETE "+ImagePath+"{handle}", h.releaseImage)
	mux.HandleFunc("GET /api/weather", h.getWeather)
	mux.HandleFunc("GET /api/holiday", h.getHoliday)
}

// show registers a viewer of bg's image and points bg at its handle.
func (h *Handlers) show(bg *background.Background) {
	if id := h.handles.Show(*bg); id != "" {
		bg.ImageURL = ImagePath + id
	}
}

func (h *Handlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	view := h.dashboard.Build(r.Context())
	h.show(&view.Background)
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) getBackground(w http.ResponseWriter, r *http.Request) {
	bg := h.dashboard.background.Today(r.Context())
	h.show(&bg)
	h.writeJSON(w, http.StatusOK, bg)
}

func (h *Handlers) getImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := h.handles.Lookup(r.PathValue("handle"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}

func (h *Handlers) releaseImage(w http.ResponseWriter, r *http.Request) {
	if !h.handles.Release(r.PathValue("handle")) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		h.writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	view := NewWeatherView(city, h.dashboard.weather.ForCity(r.Context(), city))
	h.writeJSON(w, statusFor(view.Source), view)
}

func (h *Handlers) getHoliday(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("location")
	loc, ok := h.dashboard.catalog.Lookup(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown location "+id)
		return
	}
	var res cacheaside.Result[string]
	if date := r.URL.Query().Get("date"); date != "" {
		res = h.dashboard.holidays.ForDate(r.Context(), loc, date)
	} else {
		res = h.dashboard.holidays.Today(r.Context(), loc)
	}
	view := NewHolidayView(loc.ID, res)
	h.writeJSON(w, statusFor(view.Source), view)
}

// statusFor maps a result source to an HTTP status: only an unavailable result
// is an error for the page.
func statusFor(source string) int {
	if source == cacheaside.SourceUnavailable.String() {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.dashboard.logger.Error().Err(err).Msg("Failed to encode response.")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
