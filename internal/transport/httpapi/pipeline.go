package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"ohisim.ai/internal/pipeline"
)

func (s *Server) handleETLRun(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(rw, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := s.runner.StartETL(); err != nil {
		pipelineErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, s.runner.ETLStatus())
}

func (s *Server) handleETLStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(rw, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(rw, http.StatusOK, s.runner.ETLStatus())
}

func (s *Server) handleFillRun(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(rw, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := s.runner.StartFill(); err != nil {
		pipelineErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, s.runner.FillStatus())
}

func (s *Server) handleFillStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(rw, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(rw, http.StatusOK, s.runner.FillStatus())
}

func (s *Server) handleBatchStart(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(rw, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var opts pipeline.BatchOptions
	if r.Body != nil {
		// An empty body means default options.
		_ = json.NewDecoder(r.Body).Decode(&opts)
	}
	if err := s.runner.StartBatch(opts); err != nil {
		pipelineErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, s.runner.BatchStatus())
}

func (s *Server) handleBatchStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(rw, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(rw, http.StatusOK, s.runner.BatchStatus())
}

func (s *Server) handleBatchStop(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(rw, http.StatusMethodNotAllowed, "POST only")
		return
	}
	s.runner.StopBatch()
	writeJSON(rw, http.StatusOK, s.runner.BatchStatus())
}

func (s *Server) handleBatchReset(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(rw, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if err := s.runner.ResetBatch(); err != nil {
		pipelineErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, s.runner.BatchStatus())
}

func pipelineErr(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		writeErr(rw, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrNoParse), errors.Is(err, pipeline.ErrNoCountry):
		writeErr(rw, http.StatusPreconditionFailed, err.Error())
	default:
		writeErr(rw, http.StatusInternalServerError, err.Error())
	}
}
