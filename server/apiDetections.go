package server

import (
	"net/http"
	"strconv"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/storage"
)

// httpDetectionsList returns stored detections, filtered by query
// parameters: video, session, model, class, minConfidence, frameFrom, frameTo.
func (s *Server) httpDetectionsList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	query := detectdb.DetectionQuery{
		VideoID:      www.QueryInt64(r, "video"),
		ModelVersion: www.QueryValue(r, "model"),
		Class:        www.QueryValue(r, "class"),
		FrameFrom:    www.QueryInt(r, "frameFrom"),
		FrameTo:      www.QueryInt(r, "frameTo"),
	}
	if v := www.QueryValue(r, "session"); v != "" {
		session, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			www.PanicBadRequestf("Invalid session '%v'", v)
		}
		query.SessionID = &session
	}
	if v := www.QueryValue(r, "minConfidence"); v != "" {
		minConf, err := strconv.ParseFloat(v, 32)
		if err != nil || minConf < 0 || minConf > 1 {
			www.PanicBadRequestf("Invalid minConfidence '%v'", v)
		}
		query.MinConfidence = float32(minConf)
	}
	dets, err := s.DB.GetDetections(query)
	www.Check(err)
	www.SendJSON(w, dets)
}

// httpDetectionDelete removes a detection and its evidence images
func (s *Server) httpDetectionDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	n, err := s.DB.DeleteDetections(s.storage, detectdb.DetectionQuery{DetectionID: params.ByName("id")})
	www.Check(err)
	if n == 0 {
		www.PanicNotFound()
	}
	www.SendOK(w)
}

// httpDetectionEvidence streams an evidence image. kind is "frame" or "crop".
func (s *Server) httpDetectionEvidence(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	det, err := s.DB.GetDetectionByID(params.ByName("id"))
	if err != nil {
		www.PanicNotFound()
	}

	var path *string
	switch params.ByName("kind") {
	case "frame":
		path = det.FramePath
	case "crop":
		path = det.CropPath
	default:
		www.PanicBadRequestf("kind must be 'frame' or 'crop'")
	}
	if path == nil {
		// Evidence capture failed during the run
		www.PanicNotFound()
	}

	// If the blob store can serve the image directly, redirect
	if url, err := s.storage.URL(*path); err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	// A filesystem store lets the HTTP layer do the streaming for us
	if filename, err := s.storage.Filename(*path); err == nil {
		http.ServeFile(w, r, filename)
		return
	}
	data, err := storage.ReadFile(s.storage, *path)
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}
