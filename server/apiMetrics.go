package server

import (
	"net/http"
	"strconv"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/vruscope/vruscope/pkg/nn"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/validate"
)

func (s *Server) getVideo(params httprouter.Params) *detectdb.Video {
	video, err := s.DB.GetVideo(www.ParseID(params.ByName("id")))
	if err != nil {
		www.PanicNotFound()
	}
	return video
}

// httpGroundTruthImport replaces a video's ground truth annotations with
// the uploaded label file.
func (s *Server) httpGroundTruthImport(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	video := s.getVideo(params)
	labels := nn.VideoLabels{}
	www.ReadJSON(w, r, &labels, 32*1024*1024)
	n, err := s.DB.ImportGroundTruth(video.ID, &labels)
	www.Check(err)
	type importJSON struct {
		NumObjects int `json:"numObjects"`
	}
	www.SendJSON(w, &importJSON{NumObjects: n})
}

// httpValidate matches a video's stored detections against its ground
// truth and appends a new metric record.
// Query parameter 'model' selects the model version to validate, and the
// optional 'session' parameter restricts validation to one session's
// detections and tags the resulting metric with it.
func (s *Server) httpValidate(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	video := s.getVideo(params)
	modelVersion := www.RequiredQueryValue(r, "model")
	query := detectdb.DetectionQuery{VideoID: video.ID, ModelVersion: modelVersion}
	if v := www.QueryValue(r, "session"); v != "" {
		session, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			www.PanicBadRequestf("Invalid session '%v'", v)
		}
		query.SessionID = &session
	}

	dets, err := s.DB.GetDetections(query)
	www.Check(err)
	truth, err := s.DB.GetGroundTruth(video.ID)
	www.Check(err)

	result := validate.MatchVideo(dets, truth, validate.DefaultMatchIoU)
	metric := validate.Summarize(result)
	metric.VideoID = video.ID
	metric.SessionID = query.SessionID
	metric.ModelVersion = modelVersion
	www.Check(s.DB.AddMetric(metric))

	type validateJSON struct {
		Metric  *detectdb.ValidationMetric `json:"metric"`
		Matches []validate.Match           `json:"matches"`
	}
	www.SendJSON(w, &validateJSON{Metric: metric, Matches: result.Matches})
}

// httpMetrics returns a video's validation history and the trend between
// the two most recent validations.
func (s *Server) httpMetrics(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	video := s.getVideo(params)
	modelVersion := www.QueryValue(r, "model")

	history, err := s.DB.MetricHistory(video.ID, modelVersion)
	www.Check(err)
	latest, previous, err := s.DB.LatestTwoMetrics(video.ID, modelVersion)
	www.Check(err)

	threshold := validate.DefaultTrendThreshold
	if v := www.QueryValue(r, "trendThreshold"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 {
			www.PanicBadRequestf("Invalid trendThreshold '%v'", v)
		}
	}

	type metricsJSON struct {
		History []detectdb.ValidationMetric `json:"history"`
		Trend   validate.MetricTrend        `json:"trend"`
	}
	www.SendJSON(w, &metricsJSON{
		History: history,
		Trend:   validate.Trend(latest, previous, threshold),
	})
}
