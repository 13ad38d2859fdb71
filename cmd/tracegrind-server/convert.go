package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/openprofiling/tracegrind/internal/callgrind"
	"github.com/openprofiling/tracegrind/internal/dumpfile"
	"github.com/openprofiling/tracegrind/internal/errorutil"
	"github.com/openprofiling/tracegrind/internal/jsonreport"
	"github.com/openprofiling/tracegrind/internal/profile"
	"github.com/openprofiling/tracegrind/internal/trace"
)

// postConvert converts the instruction trace in the request body and writes
// the report back. The optional format query parameter selects callgrind
// (default) or json; names are synthetic since no dump travels with the
// request.
func (e *environment) postConvert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	ok, err := trace.ContainsStandardHeader(bytes.NewReader(body))
	if err != nil || !ok {
		http.Error(w, "request body is not an instruction trace", http.StatusBadRequest)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "trace"
	}

	prof, err := profile.Build(name, bytes.NewReader(body), trace.StandardClassifier{}, dumpfile.NewResolver())
	if err != nil {
		var parseErr *trace.ParseError
		switch {
		case errors.As(err, &parseErr), errors.Is(err, errorutil.ErrDataIntegrity):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			if hub != nil {
				hub.CaptureException(err)
			}
			log.Err(err).Str("trace", name).Msg("trace can't be converted")
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "callgrind":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = callgrind.Write(prof, w)
	case "json":
		w.Header().Set("Content-Type", "application/json")
		err = jsonreport.Write(prof, w)
	default:
		http.Error(w, "unknown report format", http.StatusBadRequest)
		return
	}
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		log.Err(err).Str("trace", name).Msg("report can't be written")
	}
}
