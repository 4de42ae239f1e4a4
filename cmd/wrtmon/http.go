package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/systeminfo"
)

// newRouter exposes the metrics registry and read-only property queries.
func newRouter(info *systeminfo.Service, gatherer prometheus.Gatherer, timeout time.Duration) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/properties", func(w http.ResponseWriter, rq *http.Request) {
		writeJSONResponse(w, http.StatusOK, collect(info, timeout))
	}).Methods("GET")
	r.HandleFunc("/properties/{id}", func(w http.ResponseWriter, rq *http.Request) {
		prop, err := fetchOne(info, mux.Vars(rq)["id"], timeout)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, prop)
	}).Methods("GET")
	r.HandleFunc("/capabilities", func(w http.ResponseWriter, rq *http.Request) {
		writeJSONResponse(w, http.StatusOK, info.GetCapabilities())
	}).Methods("GET")
	r.HandleFunc("/capabilities/{key:.+}", func(w http.ResponseWriter, rq *http.Request) {
		v, err := info.GetCapability(mux.Vars(rq)["key"])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]interface{}{"value": v})
	}).Methods("GET")
	return r
}

// fetchOne waits for a single property read.
func fetchOne(info *systeminfo.Service, id string, timeout time.Duration) (model.Property, error) {
	type result struct {
		prop model.Property
		err  error
	}
	ch := make(chan result, 1)
	err := info.GetPropertyValue(nil, id,
		func(p model.Property) { ch <- result{prop: p} },
		func(err error) { ch <- result{err: err} })
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.prop, r.err
	case <-time.After(timeout):
		return nil, errs.New(errs.Platform, "timed out reading %s", id)
	}
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.InvalidArgument, errs.InvalidValues, errs.Conversion:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.NotSupported:
		return http.StatusNotImplemented
	case errs.WrongState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONResponse(w, statusFor(err), map[string]string{
		"error":  errs.KindOf(err).String(),
		"reason": err.Error(),
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
