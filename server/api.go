package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Large uploads get a rate limit per client IP
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/status", s.httpStatus)

	handle("POST", "/api/session/video", s.httpSelectVideo)
	handle("POST", "/api/session/start", s.httpStart)
	handle("POST", "/api/session/stop", s.httpStop)
	handle("POST", "/api/session/speed/toggle", s.httpToggleSpeed)
	handle("POST", "/api/label/:class/press", s.httpPressLabel)
	handle("POST", "/api/label/:class/release", s.httpReleaseLabel)

	handle("GET", "/api/dataset", s.httpGetDataset)
	ratelimited("PUT", "/api/dataset", s.httpPutDataset, 10, time.Minute)

	handle("GET", "/api/predictions", s.httpGetPredictions)
	handle("POST", "/api/predictions/publish", s.httpPublishPredictions)

	ratelimited("PUT", "/api/videos/:name", s.httpPutVideo, 10, time.Minute)

	ratelimited("POST", "/api/annotate", s.httpSubmitAnnotation, 30, time.Minute)
	handle("GET", "/api/annotate", s.httpListAnnotations)
	handle("GET", "/api/annotate/:id", s.httpGetAnnotation)

	router.Handler("GET", "/metrics", promhttp.Handler())

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
