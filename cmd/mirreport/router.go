package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/interpose/middleware"
	"github.com/justinas/alice"
)

func router(global *Global) (http.Handler, error) {
	tpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	GET := router.Methods("GET", "HEAD").Subrouter()

	h := handler{Global: global, templates: tpl}

	GET.HandleFunc("/", h.Index).Name("index")
	GET.HandleFunc("/table/{name}", h.Table).Name("table")
	GET.HandleFunc("/version", h.Version).Name("version")

	// Finished runs do not change, so their files can be cached.
	GET.PathPrefix("/files/").Handler(
		middleware.MaxAgeHandler(60*60,
			http.StripPrefix("/files/", http.FileServer(http.Dir(global.Dir)))))

	standard := alice.New(
		// Log all requests to STDOUT
		middleware.GorillaLog(),
	)

	return standard.Then(router), nil
}
