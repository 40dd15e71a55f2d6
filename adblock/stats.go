package adblock

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// AdBlockStats 广告拦截统计信息
type AdBlockStats struct {
	Enabled       bool       `json:"enabled"`
	Engine        string     `json:"engine"`
	Rules         RuleCounts `json:"rules"`
	TotalRules    int        `json:"total_rules"`
	BlockedToday  int64      `json:"blocked_today"`
	BlockedTotal  int64      `json:"blocked_total"`
	LastUpdate    string     `json:"last_update"`
	SourcesCount  int        `json:"sources_count"`
	FailedSources []string   `json:"failed_sources"`
	ProcessRSSMB  uint64     `json:"process_rss_mb"`
	MemUsagePct   float64    `json:"mem_usage_pct"`
}

// Stats 管理广告拦截统计
type Stats struct {
	blockedTotal int64
	blockedToday int64
	lastReset    time.Time
	mu           sync.RWMutex
}

// NewStats 创建统计管理器
func NewStats() *Stats {
	return &Stats{
		lastReset: time.Now(),
	}
}

// RecordBlock 记录一次拦截，跨天时重置今日计数
func (s *Stats) RecordBlock() {
	atomic.AddInt64(&s.blockedTotal, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.YearDay() != s.lastReset.YearDay() || now.Year() != s.lastReset.Year() {
		atomic.StoreInt64(&s.blockedToday, 0)
		s.lastReset = now
	}
	atomic.AddInt64(&s.blockedToday, 1)
}

// statsInput is the state of the manager that goes into [AdBlockStats].
type statsInput struct {
	lastUpdate    time.Time
	engine        string
	failedSources []string
	counts        RuleCounts
	sourcesCount  int
	enabled       bool
}

// GetStats returns the current adblock statistics.
func (s *Stats) GetStats(in *statsInput) (st AdBlockStats) {
	st = AdBlockStats{
		Enabled:       in.enabled,
		Engine:        in.engine,
		Rules:         in.counts,
		TotalRules:    in.counts.Total(),
		BlockedToday:  atomic.LoadInt64(&s.blockedToday),
		BlockedTotal:  atomic.LoadInt64(&s.blockedTotal),
		SourcesCount:  in.sourcesCount,
		FailedSources: in.failedSources,
	}

	if !in.lastUpdate.IsZero() {
		st.LastUpdate = in.lastUpdate.Format(time.RFC3339)
	}

	// 规则集占用的内存主要体现在进程 RSS 上
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			st.ProcessRSSMB = mi.RSS / 1024 / 1024
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		st.MemUsagePct = vm.UsedPercent
	}

	return st
}
