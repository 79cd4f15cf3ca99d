package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rushteam/neuralcalc/calculator"
	"github.com/rushteam/neuralcalc/core"
	"github.com/rushteam/neuralcalc/history"
)

const invalidFormatMessage = `Invalid expression format. Use: "1 + 2 - 3"`

var (
	errInvalidJSON  = errors.New("Invalid JSON body")
	errBodyTooLarge = errors.New("Request body too large")
)

type calculateRequest struct {
	Expression string `json:"expression"`
}

type batchRequest struct {
	Expressions json.RawMessage `json:"expressions"`
}

// batchItemError 是批量结果中失败的一项
type batchItemError struct {
	Expression string `json:"expression"`
	Error      string `json:"error"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":          "/api/health",
		"calculate":       "/api/calculate (POST)",
		"batch_calculate": "/api/batch-calculate (POST)",
	}
	if s.history != nil {
		endpoints["history"] = "/api/history"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      APIName,
		"version":   APIVersion,
		"status":    "running",
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": s.calc.ModelLoaded(),
	})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if !s.calc.ModelLoaded() {
		writeError(w, s.modelNotLoadedMessage(), http.StatusServiceUnavailable)
		return
	}

	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err.Error(), decodeStatus(err))
		return
	}
	expr := strings.TrimSpace(req.Expression)
	if expr == "" {
		writeError(w, "No expression provided", http.StatusBadRequest)
		return
	}
	if len(strings.Fields(expr))%2 == 0 {
		writeError(w, invalidFormatMessage, http.StatusBadRequest)
		return
	}

	res, err := s.calc.Calculate(r.Context(), expr)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchCalculate(w http.ResponseWriter, r *http.Request) {
	if !s.calc.ModelLoaded() {
		writeError(w, s.modelNotLoadedMessage(), http.StatusServiceUnavailable)
		return
	}

	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err.Error(), decodeStatus(err))
		return
	}
	var raw []json.RawMessage
	if len(req.Expressions) == 0 || json.Unmarshal(req.Expressions, &raw) != nil || len(raw) == 0 {
		writeError(w, "No expressions provided", http.StatusBadRequest)
		return
	}

	// 非字符串项直接记为失败，其余交给计算器
	out := make([]any, len(raw))
	var (
		exprs   []string
		indices []int
	)
	for i, item := range raw {
		var expr string
		if err := json.Unmarshal(item, &expr); err != nil {
			out[i] = batchItemError{Expression: string(item), Error: "expression must be a string"}
			continue
		}
		exprs = append(exprs, strings.TrimSpace(expr))
		indices = append(indices, i)
	}

	items, err := s.calc.BatchCalculate(r.Context(), exprs)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	for j, item := range items {
		if item.Err != nil {
			out[indices[j]] = batchItemError{Expression: item.Expression, Error: item.Err.Error()}
			continue
		}
		out[indices[j]] = item.Result
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, "History is not enabled", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recent, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if recent == nil {
		recent = []*core.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recent": recent,
		"stats":  stats,
	})
}

func (s *Server) modelNotLoadedMessage() string {
	if s.modelSource == "" {
		return "Model not loaded."
	}
	return "Model not loaded. Please ensure " + s.modelSource + " exists."
}

// writeDomainError 将领域错误映射为 HTTP 状态码
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = s.modelNotLoadedMessage()
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
	}
	writeError(w, msg, status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case core.IsTokenizerError(err), core.IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON 解析请求体，body 为空、格式错误或超过大小限制都视为无效请求
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return errInvalidJSON
	}
	return nil
}

func decodeStatus(err error) int {
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 以 {"error": message} 格式返回错误
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

var (
	_ Calculator    = (*calculator.Calculator)(nil)
	_ HistoryReader = (*history.SQLiteStore)(nil)
)
