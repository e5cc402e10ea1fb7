package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/wayfinder/nav"
)

// maxRouteRequestBytes caps POST /route bodies.
const maxRouteRequestBytes = 64 << 10

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(navigator *nav.Navigator, config *nav.Config) http.Handler {
	mux := http.NewServeMux()
	core := navigator.Core()
	state := navigator.State()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		counts, failed := state.MessageCounts()
		_, aligned := core.CurrentAlignment()
		current, total := core.Progress()
		status := struct {
			Status    string                  `json:"status"`
			Timestamp time.Time               `json:"timestamp"`
			Map       string                  `json:"map"`
			HasRoute  bool                    `json:"hasRoute"`
			Aligned   bool                    `json:"aligned"`
			Messages  map[nav.MessageKind]int `json:"messages"`
			Failed    int                     `json:"failedMessages"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Map:       config.Map,
			HasRoute:  total > 0 && current < total,
			Aligned:   aligned,
			Messages:  counts,
			Failed:    failed,
		}
		writeJSON(w, http.StatusOK, status)
	})

	// Active route: GET returns status, POST plans a new route
	mux.HandleFunc("/route", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, core.Snapshot())
		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRouteRequestBytes))
			if err != nil {
				http.Error(w, "Error reading request body", http.StatusBadRequest)
				return
			}
			req, err := nav.DecodeRouteRequest(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := navigator.HandleRouteRequest(req); err != nil {
				http.Error(w, err.Error(), planErrorStatus(err))
				return
			}
			writeJSON(w, http.StatusOK, core.Snapshot())
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/route.geojson", func(w http.ResponseWriter, r *http.Request) {
		tolerance, ok := floatParam(w, r, "simplify")
		if !ok {
			return
		}
		status := core.Snapshot()
		if len(status.Keypoints) == 0 {
			http.Error(w, "No route planned", http.StatusServiceUnavailable)
			return
		}
		writeGeoJSON(w, nav.RouteGeoJSON(status, tolerance))
	})

	// Latest guidance and device state
	mux.HandleFunc("/direction", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Guidance())
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		events := state.Events()
		if t := r.URL.Query().Get("type"); t != "" {
			filtered := events[:0]
			for _, e := range events {
				if string(e.Type) == t {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}
		writeJSON(w, http.StatusOK, events)
	})

	mux.HandleFunc("/alignment", func(w http.ResponseWriter, r *http.Request) {
		pose, aligned := core.CurrentAlignment()
		resp := struct {
			Aligned       bool      `json:"aligned"`
			Alignment     *nav.Pose `json:"alignment,omitempty"`
			HeadingOffset float64   `json:"headingOffset"`
		}{Aligned: aligned, HeadingOffset: core.HeadingOffset()}
		if aligned {
			resp.Alignment = &pose
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/landmarks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.Landmarks())
	})

	mux.HandleFunc("/reachable", func(w http.ResponseWriter, r *http.Request) {
		from := r.URL.Query().Get("from")
		if from == "" {
			http.Error(w, "Missing from parameter", http.StatusBadRequest)
			return
		}
		var ids []string
		known := false
		for _, l := range core.Landmarks() {
			ids = append(ids, l.ID)
			known = known || l.ID == from
		}
		if !known {
			http.Error(w, "Unknown landmark: "+from, http.StatusNotFound)
			return
		}
		reachable := core.ReachableSet([]string{from}, ids)
		if reachable == nil {
			reachable = []string{}
		}
		writeJSON(w, http.StatusOK, reachable)
	})

	mux.HandleFunc("/edge.geojson", func(w http.ResponseWriter, r *http.Request) {
		from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
		if from == "" || to == "" {
			http.Error(w, "Missing from or to parameter", http.StatusBadRequest)
			return
		}
		tolerance, ok := floatParam(w, r, "simplify")
		if !ok {
			return
		}
		e, found := core.Edge(from, to)
		if !found {
			http.Error(w, "No recorded segment from "+from+" to "+to, http.StatusNotFound)
			return
		}
		writeGeoJSON(w, nav.EdgeGeoJSON(e, tolerance))
	})

	mux.HandleFunc("/entrances.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, nav.EntrancesGeoJSON(core.Landmarks()))
	})

	return logRequests(mux)
}

// logRequests logs each request the way the service logs everything else.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// planErrorStatus maps planner errors onto HTTP status codes.
func planErrorStatus(err error) int {
	switch {
	case errors.Is(err, nav.ErrUnknownLandmark):
		return http.StatusNotFound
	case errors.Is(err, nav.ErrUnreachable), errors.Is(err, nav.ErrMissingEdge),
		errors.Is(err, nav.ErrGeoAnchorUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// floatParam reads an optional non-negative float query parameter. It
// writes a 400 and returns false when the value is malformed.
func floatParam(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		http.Error(w, "Invalid "+name+" parameter", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeGeoJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding GeoJSON: %v", err)
	}
}
