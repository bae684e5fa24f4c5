package cache

import (
	"sort"
	"strings"
	"time"

	"r4r-detector/internal/models"
)

// ReportCache memoizes single-user analysis reports keyed by userkey. The
// freshness window is short: it exists to absorb repeated UI polling, not
// to persist results.
type ReportCache struct {
	cache *LRUCache
}

// NewReportCache creates a report cache with the given capacity and TTL.
func NewReportCache(capacity int, ttl time.Duration) *ReportCache {
	return &ReportCache{cache: NewLRUCache(capacity, ttl)}
}

// Get returns a fresh cached report for userkey, if any.
func (rc *ReportCache) Get(userkey string) (*models.R4RAnalysis, bool) {
	if value, exists := rc.cache.Get(userkey); exists {
		return value.(*models.R4RAnalysis), true
	}
	return nil, false
}

// Set stores a freshly computed report.
func (rc *ReportCache) Set(report *models.R4RAnalysis) {
	rc.cache.Set(report.Userkey, report)
}

// Invalidate drops the cached report for userkey.
func (rc *ReportCache) Invalidate(userkey string) {
	rc.cache.Delete(userkey)
}

// Clear drops every cached report.
func (rc *ReportCache) Clear() {
	rc.cache.Clear()
}

// Stats returns cache statistics.
func (rc *ReportCache) Stats() Stats {
	return rc.cache.Stats()
}

// NetworkCache memoizes batch network scans keyed by their member set. It
// uses a longer window than ReportCache because scans are expensive, and a
// scan is only ever recomputed on explicit request.
type NetworkCache struct {
	cache *LRUCache
}

// NewNetworkCache creates a network scan cache.
func NewNetworkCache(capacity int, ttl time.Duration) *NetworkCache {
	return &NetworkCache{cache: NewLRUCache(capacity, ttl)}
}

// Get returns a fresh cached scan for the member set, if any. Ordering of
// the userkeys does not matter.
func (nc *NetworkCache) Get(userkeys []string) (*models.NetworkAnalysis, bool) {
	if value, exists := nc.cache.Get(networkKey(userkeys)); exists {
		return value.(*models.NetworkAnalysis), true
	}
	return nil, false
}

// Set stores a freshly computed scan under its member set.
func (nc *NetworkCache) Set(userkeys []string, scan *models.NetworkAnalysis) {
	nc.cache.Set(networkKey(userkeys), scan)
}

// Clear drops every cached scan.
func (nc *NetworkCache) Clear() {
	nc.cache.Clear()
}

// Stats returns cache statistics.
func (nc *NetworkCache) Stats() Stats {
	return nc.cache.Stats()
}

// networkKey builds an order-insensitive key for a member set.
func networkKey(userkeys []string) string {
	sorted := make([]string, len(userkeys))
	copy(sorted, userkeys)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
