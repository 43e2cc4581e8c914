package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cyclopcam/teachable/pkg/dataset"
	"github.com/cyclopcam/teachable/pkg/kibi"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/cyclopcam/teachable/server/annotate"
	"github.com/cyclopcam/teachable/server/session"
	"github.com/cyclopcam/teachable/server/storage"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Errors caused by the request become 400s. Anything else is a 500.
func checkRequest(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, knn.ErrInvalidClass) || errors.Is(err, dataset.ErrMalformedDataset) || errors.Is(err, session.ErrNoVideo) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
}

func parseClass(params httprouter.Params) int {
	class, err := strconv.Atoi(params.ByName("class"))
	if err != nil {
		www.PanicBadRequestf("Invalid label '%v'", params.ByName("class"))
	}
	return class
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.session.Status())
}

func (s *Server) httpSelectVideo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := www.RequiredQueryValue(r, "name")
	if _, err := storage.CleanName(name); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(s.SelectVideo(name))
	www.SendJSON(w, s.session.Status())
}

func (s *Server) httpStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	checkRequest(s.session.Start())
	www.SendOK(w)
}

func (s *Server) httpStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.session.Stop()
	www.SendOK(w)
}

func (s *Server) httpToggleSpeed(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	rate, err := s.session.ToggleSpeed()
	checkRequest(err)
	www.SendJSON(w, map[string]float64{"rate": rate})
}

func (s *Server) httpPressLabel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	checkRequest(s.session.PressLabel(parseClass(params)))
	www.SendOK(w)
}

func (s *Server) httpReleaseLabel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	checkRequest(s.session.ReleaseLabel(parseClass(params)))
	www.SendOK(w)
}

func (s *Server) httpGetDataset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+dataset.DefaultFilename+`"`)
	www.Check(dataset.Encode(w, s.session.SaveDataset()))
}

func (s *Server) httpPutDataset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	blob, err := dataset.Decode(http.MaxBytesReader(w, r.Body, int64(s.config.Limits.MaxDatasetSize)))
	checkRequest(err)
	checkRequest(s.session.LoadDataset(blob))
	www.SendJSON(w, s.session.Status())
}

func (s *Server) exportFilename() string {
	name := s.session.VideoName()
	if name == "" {
		name = "session"
	}
	return predlog.TrackFilename(name)
}

func (s *Server) httpGetPredictions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	csv, err := s.session.ExportPredictions()
	www.Check(err)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+s.exportFilename()+`"`)
	io.WriteString(w, csv)
}

// Save the prediction track into artifact storage, next to the output of annotation jobs
func (s *Server) httpPublishPredictions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	csv, err := s.session.ExportPredictions()
	www.Check(err)
	path := storage.AnnotationPrefix + s.exportFilename()
	www.Check(storage.WriteFile(r.Context(), s.storage, path, strings.NewReader(csv)))
	www.SendJSON(w, map[string]string{"path": path})
}

func (s *Server) httpPutVideo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name, err := storage.CleanName(params.ByName("name"))
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	body := http.MaxBytesReader(w, r.Body, int64(s.config.Limits.MaxVideoSize))
	if err := storage.WriteFile(r.Context(), s.storage, storage.VideoPrefix+name, body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			www.PanicBadRequestf("Video is larger than %v", s.config.Limits.MaxVideoSize)
		}
		www.Check(err)
	}
	s.Log.Infof("Stored video %v (%v)", name, kibi.ByteSize(r.ContentLength))
	www.SendOK(w)
}

func (s *Server) requireAnnotator() *annotate.Annotator {
	if s.annotator == nil {
		www.PanicBadRequestf("Annotation jobs are not enabled (no annotationDB configured)")
	}
	return s.annotator
}

func (s *Server) httpSubmitAnnotation(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	a := s.requireAnnotator()
	if s.session.CloneStore().TotalExampleCount() == 0 {
		www.PanicBadRequestf("Label some frames before submitting an annotation job")
	}
	job, err := a.Submit(www.RequiredQueryValue(r, "video"))
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.SendJSON(w, job)
}

func (s *Server) httpListAnnotations(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	jobs, err := s.requireAnnotator().List(100)
	www.Check(err)
	www.SendJSON(w, jobs)
}

func (s *Server) httpGetAnnotation(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	a := s.requireAnnotator()
	id, err := strconv.ParseInt(params.ByName("id"), 10, 64)
	if err != nil {
		www.PanicBadRequestf("Invalid job id '%v'", params.ByName("id"))
	}
	job, err := a.Get(id)
	if errors.Is(err, annotate.ErrJobNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	www.SendJSON(w, job)
}
