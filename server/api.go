package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handler httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handler)
	}

	handle("GET", "/api/ping", s.httpPing)

	handle("POST", "/api/run", s.httpRunStart)
	handle("GET", "/api/run/:id", s.httpRunStatus)
	handle("POST", "/api/run/:id/cancel", s.httpRunCancel)

	handle("GET", "/api/detections", s.httpDetectionsList)
	handle("DELETE", "/api/detections/:id", s.httpDetectionDelete)
	handle("GET", "/api/detections/:id/evidence/:kind", s.httpDetectionEvidence)

	handle("POST", "/api/video/:id/groundtruth", s.httpGroundTruthImport)
	handle("POST", "/api/video/:id/validate", s.httpValidate)
	handle("GET", "/api/video/:id/metrics", s.httpMetrics)

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	www.SendJSON(w, &pingJSON{
		Time: time.Now().Unix(),
	})
}
