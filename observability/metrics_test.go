package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	// Verify all metrics are initialized
	if m.GatewayRequestsTotal == nil {
		t.Error("GatewayRequestsTotal is nil")
	}
	if m.GatewayResolutionsTotal == nil {
		t.Error("GatewayResolutionsTotal is nil")
	}
	if m.UpstreamRequestsTotal == nil {
		t.Error("UpstreamRequestsTotal is nil")
	}
	if m.UpstreamErrorsTotal == nil {
		t.Error("UpstreamErrorsTotal is nil")
	}
	if m.UpstreamDuration == nil {
		t.Error("UpstreamDuration is nil")
	}
	if m.CacheLookupsTotal == nil {
		t.Error("CacheLookupsTotal is nil")
	}
	if m.CacheTierErrorsTotal == nil {
		t.Error("CacheTierErrorsTotal is nil")
	}
	if m.DBQueryDuration == nil {
		t.Error("DBQueryDuration is nil")
	}
	if m.DBQueryTotal == nil {
		t.Error("DBQueryTotal is nil")
	}
	if m.DBErrorsTotal == nil {
		t.Error("DBErrorsTotal is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration is nil")
	}
	if m.HTTPResponseSize == nil {
		t.Error("HTTPResponseSize is nil")
	}
}

func TestRecordGatewayRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordGatewayRequest("proxied")
	m.RecordGatewayRequest("proxied")
	m.RecordGatewayRequest("forbidden")

	proxied := testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("proxied"))
	if proxied != 2 {
		t.Errorf("Expected proxied count to be 2, got %f", proxied)
	}

	forbidden := testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("forbidden"))
	if forbidden != 1 {
		t.Errorf("Expected forbidden count to be 1, got %f", forbidden)
	}
}

func TestRecordResolution(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordResolution("prefixed")
	m.RecordResolution("prefixed")
	m.RecordResolution("default")

	prefixed := testutil.ToFloat64(m.GatewayResolutionsTotal.WithLabelValues("prefixed"))
	if prefixed != 2 {
		t.Errorf("Expected prefixed count to be 2, got %f", prefixed)
	}
}

func TestRecordUpstreamRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordUpstreamRequest("200", 100*time.Millisecond)
	m.RecordUpstreamRequest("200", 50*time.Millisecond)
	m.RecordUpstreamRequest("429", 10*time.Millisecond)

	ok := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("200"))
	if ok != 2 {
		t.Errorf("Expected 200 count to be 2, got %f", ok)
	}

	throttled := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("429"))
	if throttled != 1 {
		t.Errorf("Expected 429 count to be 1, got %f", throttled)
	}
}

func TestRecordUpstreamError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordUpstreamError("dial")
	m.RecordUpstreamError("dial")
	m.RecordUpstreamError("timeout")

	dial := testutil.ToFloat64(m.UpstreamErrorsTotal.WithLabelValues("dial"))
	if dial != 2 {
		t.Errorf("Expected dial count to be 2, got %f", dial)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCacheLookup("rulesByHash", "fresh")
	m.RecordCacheLookup("rulesByHash", "fresh")
	m.RecordCacheLookup("rulesByHash", "miss")

	fresh := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("rulesByHash", "fresh"))
	if fresh != 2 {
		t.Errorf("Expected fresh count to be 2, got %f", fresh)
	}

	miss := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("rulesByHash", "miss"))
	if miss != 1 {
		t.Errorf("Expected miss count to be 1, got %f", miss)
	}
}

func TestRecordCacheTierError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCacheTierError("redis", "get")
	m.RecordCacheTierError("redis", "set")

	getErrors := testutil.ToFloat64(m.CacheTierErrorsTotal.WithLabelValues("redis", "get"))
	if getErrors != 1 {
		t.Errorf("Expected redis get error count to be 1, got %f", getErrors)
	}
}

func TestRecordDBQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDBQuery("select", "keys", 10*time.Millisecond)
	m.RecordDBQuery("insert", "rulesets", 5*time.Millisecond)
	m.RecordDBQuery("select", "rulesets", 8*time.Millisecond)

	selectKeys := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "keys"))
	if selectKeys != 1 {
		t.Errorf("Expected select keys count to be 1, got %f", selectKeys)
	}

	insertRulesets := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("insert", "rulesets"))
	if insertRulesets != 1 {
		t.Errorf("Expected insert rulesets count to be 1, got %f", insertRulesets)
	}
}

func TestRecordDBError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDBError("select", "keys")
	m.RecordDBError("insert", "rulesets")

	selectError := testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("select", "keys"))
	if selectError != 1 {
		t.Errorf("Expected select error count to be 1, got %f", selectError)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/health", "200", 10*time.Millisecond, 256)
	m.RecordHTTPRequest("POST", "/api/chat/completions", "200", 2*time.Second, 4096)
	m.RecordHTTPRequest("POST", "/api/chat/completions", "500", 50*time.Millisecond, 128)

	healthOK := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
	if healthOK != 1 {
		t.Errorf("Expected GET /health 200 count to be 1, got %f", healthOK)
	}

	proxyError := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/chat/completions", "500"))
	if proxyError != 1 {
		t.Errorf("Expected POST /api/chat/completions 500 count to be 1, got %f", proxyError)
	}
}

func TestTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	timer := m.NewTimer()
	if timer == nil {
		t.Fatal("NewTimer returned nil")
	}

	// Sleep a small amount to ensure duration is measurable
	time.Sleep(10 * time.Millisecond)

	duration := timer.Duration()
	if duration < 10*time.Millisecond {
		t.Errorf("Expected duration to be at least 10ms, got %v", duration)
	}

	// Test ObserveUpstream
	timer.ObserveUpstream("200")

	// Test ObserveDB
	timer2 := m.NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer2.ObserveDB("select", "keys")
}

func TestGetMetrics_Singleton(t *testing.T) {
	// Save and restore global metrics state
	original := globalMetrics
	defer func() { globalMetrics = original }()

	// Create a fresh metrics instance with a dedicated registry
	reg := prometheus.NewRegistry()
	testMetrics := NewMetrics(reg)
	globalMetrics = testMetrics

	m1 := GetMetrics()
	if m1 == nil {
		t.Fatal("GetMetrics returned nil")
	}

	m2 := GetMetrics()
	if m1 != m2 {
		t.Error("GetMetrics should return the same instance")
	}
}

func TestInitMetrics_SetsGlobal(t *testing.T) {
	// Save and restore global metrics state
	original := globalMetrics
	defer func() { globalMetrics = original }()

	// Create a new registry for isolation
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	globalMetrics = m

	// Verify it's the global instance
	if globalMetrics != m {
		t.Error("globalMetrics should match the instance we set")
	}

	// Verify GetMetrics returns it
	if GetMetrics() != m {
		t.Error("GetMetrics should return the global instance")
	}
}
