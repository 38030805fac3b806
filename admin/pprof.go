// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"strings"

	"github.com/gorilla/mux"
)

// profiles are the runtime profiles served under /debug/pprof/ and whether
// each is on by default. PPROF_<NAME>=yes|no overrides the default, e.g.
// PPROF_TRACE=yes. Heap and goroutine dumps can hold account emails and
// password digests, so they only ever go on the admin port.
var profiles = map[string]bool{
	"allocs":       true,
	"block":        true,
	"cmdline":      true,
	"goroutine":    true,
	"heap":         true,
	"mutex":        true,
	"profile":      true,
	"threadcreate": false,
	"trace":        false,
}

// Init turns on block and mutex sampling when those profiles are served.
// Call it once at startup.
func Init() {
	if profileEnabled("block") {
		runtime.SetBlockProfileRate(1)
	}
	if profileEnabled("mutex") {
		runtime.SetMutexProfileFraction(1)
	}
}

func profileEnabled(name string) bool {
	switch strings.ToLower(os.Getenv("PPROF_" + strings.ToUpper(name))) {
	case "yes":
		return true
	case "no":
		return false
	}
	return profiles[name]
}

func addProfileRoutes(r *mux.Router) {
	r.HandleFunc("/debug/pprof/", pprof.Index)

	for name := range profiles {
		if !profileEnabled(name) {
			continue
		}
		var h http.Handler
		switch name {
		case "cmdline":
			h = http.HandlerFunc(pprof.Cmdline)
		case "profile":
			h = http.HandlerFunc(pprof.Profile)
		case "trace":
			h = http.HandlerFunc(pprof.Trace)
		default:
			h = pprof.Handler(name)
		}
		r.Handle("/debug/pprof/"+name, h)
	}
}
