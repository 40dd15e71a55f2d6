package webapi

import (
	"net/http"

	"midoriadblock/adblock"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// handleCustomRules 处理自定义规则请求
func (s *Server) handleCustomRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		content, err := s.mgr.CustomRules()
		if err != nil {
			s.writeJSONError(w, "Failed to read custom rules: "+err.Error(), http.StatusInternalServerError)
			return
		}

		s.writeJSONSuccess(w, "Custom rules retrieved", map[string]string{"content": content})

	case http.MethodPost:
		var payload struct {
			Rule string `json:"rule"`
		}
		if !s.decodeJSON(w, r, &payload) {
			return
		}

		// 追加后会立即重新加载规则
		err := s.mgr.AddCustomRule(r.Context(), payload.Rule)
		if errors.Is(err, adblock.ErrInvalidRule) {
			s.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		} else if err != nil {
			s.logger.ErrorContext(r.Context(), "adding custom rule", slogutil.KeyError, err)
			s.writeJSONError(w, "Failed to add custom rule: "+err.Error(), http.StatusInternalServerError)
			return
		}

		s.writeJSONSuccess(w, "Custom rule added and rules reloaded", nil)

	default:
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
	}
}
