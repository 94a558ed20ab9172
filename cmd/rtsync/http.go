package main

import (
	"net/http"
	"time"
)

// startHTTP serves handler on addr until the process exits or the
// listener errors; split out from runManager so the manager subcommand
// body stays focused on wiring rather than server plumbing.
func startHTTP(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
