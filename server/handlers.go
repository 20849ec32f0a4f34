package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/validation"
	"github.com/rushteam/lookbook/recommend"
)

const (
	defaultLimit    = 20
	defaultMaxItems = 3
	maxEventBytes   = 64 << 10
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 把领域错误映射为 HTTP 状态码：INVALID_INPUT 400，NOT_FOUND 404，其余 500。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, core.ErrorCodeInternalError
	switch {
	case core.IsValidation(err):
		status, code = http.StatusBadRequest, core.ErrorCodeInvalidInput
	case core.IsNotFound(err):
		status, code = http.StatusNotFound, core.ErrorCodeNotFound
	default:
		s.logger.Error().Err(err).Str("request_id", w.Header().Get(RequestIDHeader)).Str("path", r.URL.Path).Msg("request failed")
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// intParam 读取整数查询参数，缺失时返回默认值。
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.ValidationError(core.ModuleServer, "%s must be an integer", name)
	}
	return n, nil
}

func (s *Server) forYou(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.RecommendForYou(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) completeTheLook(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "maxItems", defaultMaxItems)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.CompleteTheLook(r.Context(), chi.URLParam(r, "productID"), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) similar(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.Similar(r.Context(), chi.URLParam(r, "productID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// popular 返回全局热门榜单，冷启动页面直接使用。
func (s *Server) popular(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.svc.Popular(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, core.RankedResult{Items: items})
}

func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var ev core.InteractionEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		s.writeError(w, r, core.ValidationError(core.ModuleServer, "malformed event: %v", err))
		return
	}
	if err := s.svc.Record(r.Context(), ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) invalidateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if !validation.ValidID(id) {
		s.writeError(w, r, core.ValidationError(core.ModuleServer, "invalid product id %q", id))
		return
	}
	s.svc.InvalidateProduct(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CacheStats())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health(r.Context()))
}

// readyz 在热门榜单预热完成前返回 503。
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health(r.Context())
	status := http.StatusOK
	if !h.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

var _ Recommender = (*recommend.Service)(nil)
