package webapi

import (
	"context"
	"net/http"
	"time"

	"midoriadblock/adblock"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// updateTimeout bounds a rule update started through the API.
const updateTimeout = 10 * time.Minute

// statusData is the data of the status response.
type statusData struct {
	adblock.AdBlockStats

	RecentlyBlocked []string `json:"recently_blocked"`
}

// handleAdBlockStatus 处理广告拦截状态请求
func (s *Server) handleAdBlockStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSONSuccess(w, "AdBlock status retrieved successfully", &statusData{
		AdBlockStats:    s.mgr.GetStats(),
		RecentlyBlocked: s.mgr.RecentlyBlocked(),
	})
}

// handleAdBlockToggle 处理广告拦截开关请求
func (s *Server) handleAdBlockToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Enabled bool `json:"enabled"`
	}
	if !s.decodeJSON(w, r, &payload) {
		return
	}

	s.mgr.SetEnabled(payload.Enabled)

	if err := s.saveConfig(); err != nil {
		s.logger.ErrorContext(r.Context(), "toggling adblock", slogutil.KeyError, err)
		s.writeJSONError(w, "Failed to write config file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.InfoContext(r.Context(), "adblock toggled", "enabled", payload.Enabled)
	s.writeJSONSuccess(w, "AdBlock status updated successfully", nil)
}

// sourcePayload is the request body of the sources endpoint.  Active
// defaults to true when adding a source.
type sourcePayload struct {
	Active *bool  `json:"active"`
	URI    string `json:"uri"`
}

// handleAdBlockSources 处理广告拦截源请求
func (s *Server) handleAdBlockSources(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.writeJSONSuccess(w, "AdBlock sources retrieved successfully", s.mgr.Sources())
		return
	}

	var payload sourcePayload
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		if !s.decodeJSON(w, r, &payload) {
			return
		}
	default:
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	if payload.URI == "" {
		s.writeJSONError(w, "URI cannot be empty", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	var err error
	var msg string
	switch r.Method {
	case http.MethodPost:
		active := payload.Active == nil || *payload.Active
		err = s.mgr.AddSource(ctx, payload.URI, active)
		msg = "AdBlock source added successfully"
	case http.MethodPut:
		if payload.Active == nil {
			s.writeJSONError(w, "Active cannot be empty", http.StatusBadRequest)
			return
		}

		err = s.mgr.SetSourceActive(ctx, payload.URI, *payload.Active)
		msg = "AdBlock source status updated successfully"
	default:
		err = s.mgr.RemoveSource(ctx, payload.URI)
		msg = "AdBlock source removed successfully"
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "updating source", "uri", payload.URI, slogutil.KeyError, err)

		code := http.StatusInternalServerError
		if errors.Is(err, adblock.ErrSourceNotFound) {
			code = http.StatusNotFound
		}

		s.writeJSONError(w, "Failed to update source: "+err.Error(), code)
		return
	}

	// 配置文件写入失败不影响已生效的修改
	if err = s.saveConfig(); err != nil {
		s.logger.WarnContext(ctx, "saving sources", slogutil.KeyError, err)
	}

	s.writeJSONSuccess(w, msg, nil)
}

// handleAdBlockUpdate 处理广告拦截规则更新请求
func (s *Server) handleAdBlockUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	// 检查是否有更新正在进行中
	s.adblockMutex.Lock()
	if s.isAdblockBusy {
		s.adblockMutex.Unlock()
		s.writeJSONError(w, "AdBlock update is already in progress, please wait", http.StatusConflict)
		return
	}
	s.isAdblockBusy = true
	s.adblockMutex.Unlock()

	s.updates.Add(1)
	go s.runUpdate()

	s.writeJSONSuccess(w, "AdBlock rule update started", nil)
}

// runUpdate force-updates all sources and clears the busy flag.
func (s *Server) runUpdate() {
	defer s.updates.Done()
	defer func() {
		// 更新完成后重置标志
		s.adblockMutex.Lock()
		s.isAdblockBusy = false
		s.adblockMutex.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	defer slogutil.RecoverAndLog(ctx, s.logger)

	res, err := s.mgr.UpdateRules(ctx, true)
	if err != nil {
		s.logger.ErrorContext(ctx, "manual update", slogutil.KeyError, err)
		return
	}

	s.logger.InfoContext(
		ctx,
		"manual update completed",
		"rules", res.TotalRules,
		"updated", res.Updated,
		"failed", len(res.FailedSources),
		"duration_sec", res.DurationSeconds,
	)
}

// testData is the data of the test response.
type testData struct {
	adblock.Decision

	URL     string `json:"url"`
	PageURL string `json:"page_url"`
	Enabled bool   `json:"enabled"`
}

// handleAdBlockTest 处理广告拦截测试请求
func (s *Server) handleAdBlockTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		URL     string `json:"url"`
		PageURL string `json:"page_url"`
	}
	if !s.decodeJSON(w, r, &payload) {
		return
	}

	if payload.URL == "" {
		s.writeJSONError(w, "URL cannot be empty", http.StatusBadRequest)
		return
	}

	s.writeJSONSuccess(w, "URL test complete", &testData{
		Decision: s.mgr.Test(payload.URL, payload.PageURL),
		URL:      payload.URL,
		PageURL:  payload.PageURL,
		Enabled:  s.mgr.Enabled(),
	})
}

// handleAdBlockRequest runs the request hook for url.  A blocked request gets
// the blank replacement body, an allowed one gets 204.
func (s *Server) handleAdBlockRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	reqURL := q.Get("url")
	if reqURL == "" {
		s.writeJSONError(w, "URL cannot be empty", http.StatusBadRequest)
		return
	}

	if s.mgr.OnRequestStarting(reqURL, q.Get("page_url")) == adblock.ActionAllow {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", adblock.BlockedContentType)
	_, _ = w.Write([]byte(adblock.BlockedBody))
}

// handleAdBlockHider returns the script collapsing the blocked elements of a
// page.
func (s *Server) handleAdBlockHider(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	script := s.mgr.OnLoadFinished(r.URL.Query().Get("page_url"))
	if script == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(script))
}

// handleAdBlockScript returns the element hiding script for a page.
func (s *Server) handleAdBlockScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	script := s.mgr.OnDocumentStart(r.URL.Query().Get("page_url"))
	if script == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(script))
}

// handleAdBlockStylesheet returns the global element hiding stylesheet.
func (s *Server) handleAdBlockStylesheet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(s.mgr.GlobalStylesheet()))
}
