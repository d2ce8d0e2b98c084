package restserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/internal/log"
	"github.com/opensensors/airsense/internal/query"
	"github.com/opensensors/airsense/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST API server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// apiError is the error document returned for rejected requests
type apiError struct {
	Detail []apiErrorDetail `json:"detail"`
}

type apiErrorDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// writeError renders a request failure. Validation errors carry the
// offending parameter and map to 422; everything else is a 500 with the
// detail kept out of the response body.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if verr, ok := err.(*query.ValidationError); ok {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(apiError{
			Detail: []apiErrorDetail{{
				Loc:  []string{"query", verr.Param},
				Msg:  verr.Message,
				Type: "validation error",
			}},
		})
		return
	}

	log.Errorf("query failed: %v", err)
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(apiError{
		Detail: []apiErrorDetail{{Msg: "internal server error", Type: "server error"}},
	})
}

// writeResult renders a result envelope in the requested format. For
// MessagePack output the raw JSON payloads have to be decoded first so
// they encode as structures rather than byte blobs.
func (h *Handlers) writeResult(w http.ResponseWriter, req *http.Request, res *database.Result) {
	if req.URL.Query().Get("format") == "msgpack" {
		results := make([]interface{}, 0, len(res.Results))
		for _, raw := range res.Results {
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				h.writeError(w, err)
				return
			}
			results = append(results, v)
		}
		h.formatter.WriteResponse(w, req, map[string]interface{}{
			"meta":    res.Meta,
			"results": results,
		}, nil)
		return
	}

	if err := h.formatter.WriteResponse(w, req, res, nil); err != nil {
		log.Errorf("error writing response: %v", err)
	}
}

// queryTimeout bounds any single read against the database
const queryTimeout = 30 * time.Second

func (h *Handlers) queryContext(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), queryTimeout)
}

// Ping is the liveness endpoint
func (h *Handlers) Ping(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, map[string]string{"ping": "pong"}, nil)
}

// statusResponse reports API health plus ingest recency
type statusResponse struct {
	Status        string     `json:"status"`
	LastIngest    *time.Time `json:"lastIngest,omitempty"`
	LastIngestKey string     `json:"lastIngestKey,omitempty"`
}

// GetStatus reports the most recently completed ingest batch
func (h *Handlers) GetStatus(w http.ResponseWriter, req *http.Request) {
	fl, err := h.controller.DB.LastCompletedFetch()
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := statusResponse{Status: "ok"}
	if fl != nil {
		resp.LastIngest = fl.Completed
		resp.LastIngestKey = fl.Key
	}
	h.formatter.WriteResponse(w, req, resp, nil)
}

// GetParameters lists the measurand reference table
func (h *Handlers) GetParameters(w http.ResponseWriter, req *http.Request) {
	p, err := query.ParseParameters(req.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	measurands, err := h.controller.DB.GetParameters(p.OrderBy, p.Sort)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// page in memory; the reference table is tiny
	start := p.Offset
	if start > len(measurands) {
		start = len(measurands)
	}
	end := start + p.Limit
	if end > len(measurands) {
		end = len(measurands)
	}

	res := &database.Result{
		Meta:    database.NewMeta(p.Page, p.Limit),
		Results: make([]json.RawMessage, 0, end-start),
	}
	res.Meta.Found = int64(len(measurands))
	for _, m := range measurands[start:end] {
		encoded, err := json.Marshal(parameterResult(m))
		if err != nil {
			h.writeError(w, err)
			return
		}
		res.Results = append(res.Results, encoded)
	}

	h.writeResult(w, req, res)
}

// parameterResult shapes a measurand row for the API
func parameterResult(m database.Measurand) map[string]interface{} {
	out := map[string]interface{}{
		"id":            m.MeasurandsID,
		"name":          m.Measurand,
		"preferredUnit": m.Units,
	}
	if m.Display != nil {
		out["displayName"] = *m.Display
	}
	if m.Description != nil {
		out["description"] = *m.Description
	} else if m.Display != nil {
		out["description"] = *m.Display
	}
	return out
}
