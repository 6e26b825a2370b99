package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/imagevault/imagevault/image"
	"github.com/imagevault/imagevault/store"
	"github.com/imagevault/imagevault/version"
)

func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.NewRoute().Name("GetImage").Methods("GET").Path("/v1/image/{dir:.+}/{file}")
	r.NewRoute().Name("GetOriginal").Methods("GET").Path("/v1/original/{dir:.+}/{file}")
	r.NewRoute().Name("Ping").Methods("HEAD", "GET").Path("/v1/ping")
	return r
}

func NewHandler(svc version.Service, s store.Client, r *mux.Router, logger log.Logger) http.Handler {
	for method, handlerFunc := range map[string]http.Handler{
		"GetImage":    handleGetImage(svc),
		"GetOriginal": handleGetOriginal(svc),
		"Ping":        handlePing(s),
	} {
		handler := logging(handlerFunc, log.With(logger, "method", method))
		r.Get(method).Handler(handler)
	}
	return r
}

// The request surface is deliberately thin: it parses the path and
// query into a canonical artifact and hands off; the core never sees
// HTTP types.
func artifactFromRequest(r *http.Request) (image.Artifact, error) {
	vars := mux.Vars(r)
	q := r.URL.Query()
	opts := image.Options{Action: q.Get("action")}

	atoi := func(name string) (int, bool, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, false, fmt.Errorf("bad %s %q", name, raw)
		}
		return n, true, nil
	}

	var err error
	if opts.Width, _, err = atoi("width"); err != nil {
		return image.Artifact{}, err
	}
	if opts.Height, _, err = atoi("height"); err != nil {
		return image.Artifact{}, err
	}
	if x, ok, err := atoi("cx"); err != nil {
		return image.Artifact{}, err
	} else if ok {
		opts.CropX = &x
	}
	if y, ok, err := atoi("cy"); err != nil {
		return image.Artifact{}, err
	} else if ok {
		opts.CropY = &y
	}

	return image.Artifact{
		Dir:     vars["dir"],
		File:    vars["file"],
		Options: opts,
	}, nil
}

func handleGetImage(svc version.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := artifactFromRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		meta, err := svc.GenerateVersion(r.Context(), a)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, meta)
	})
}

func handleGetOriginal(svc version.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := artifactFromRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params, err := svc.FindOriginal(r.Context(), a)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, params)
	})
}

func handlePing(s store.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func statusFor(err error) int {
	switch version.ErrorKind(err) {
	case version.KindNoSuchSource:
		return http.StatusNotFound
	case version.KindLockTimeout, version.KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	fmt.Fprint(w, err.Error())
}

func logging(next http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cw := &codeWriter{w, http.StatusOK}
		next.ServeHTTP(cw, r)
		requestLogger := log.With(logger, "url", r.URL.String(), "status", cw.code)
		requestLogger.Log()
	})
}

// codeWriter intercepts the written HTTP status code, retaining it
// for logging.
type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
