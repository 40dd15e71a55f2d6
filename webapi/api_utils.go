package webapi

import (
	"encoding/json"
	"io"
	"net/http"

	"midoriadblock/config"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// maxBodySize limits the size of JSON request bodies.
const maxBodySize = 64 * 1024

// writeJSONError 写入 JSON 错误响应
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Message: message,
	})
	if err != nil {
		s.logger.Debug("writing error response", slogutil.KeyError, err)
	}
}

// writeJSONSuccess 写入 JSON 成功响应
func (s *Server) writeJSONSuccess(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
	if err != nil {
		s.logger.Debug("writing response", slogutil.KeyError, err)
	}
}

// decodeJSON decodes the request body into v.  It writes the error response
// itself and returns false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) (ok bool) {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)

		return false
	}

	return true
}

// corsMiddleware CORS 中间件
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// saveConfig 把管理器的当前状态写回配置文件
func (s *Server) saveConfig() (err error) {
	s.cfgMutex.Lock()
	defer s.cfgMutex.Unlock()

	s.cfg.AdBlock.Enable = s.mgr.Enabled()
	s.cfg.AdBlock.Filters = s.mgr.FilterSources()

	if s.configPath == "" {
		return nil
	}

	err = config.SaveConfig(s.configPath, s.cfg)
	if err != nil {
		return errors.Annotate(err, "saving config: %w")
	}

	return nil
}
