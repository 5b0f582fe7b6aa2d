package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	RecordRequest("navigate", "ok", 1*time.Second)
	UpdateRegistrySize(2)
	UpdateActionLockHolderTTL(5 * time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"browsergate_registry_size",
		"browsergate_action_lock_holder_ttl_seconds",
		"browsergate_requests_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in output", metric)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.24")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_build_info") {
		t.Error("Expected browsergate_build_info metric")
	}
	if !strings.Contains(body, "version=\"1.0.0\"") {
		t.Error("Expected version label in build_info")
	}
	if !strings.Contains(body, "go_version=\"go1.24\"") {
		t.Error("Expected go_version label in build_info")
	}
}

func TestRecordRequest(t *testing.T) {
	RecordRequest("click", "ok", 1*time.Second)
	RecordRequest("click", "handler_error", 500*time.Millisecond)
	RecordRequest("navigate", "ok", 2*time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_requests_total") {
		t.Error("Expected browsergate_requests_total metric")
	}
	if !strings.Contains(body, "browsergate_request_duration_seconds") {
		t.Error("Expected browsergate_request_duration_seconds metric")
	}
}

func TestRecordActionLockAcquire(t *testing.T) {
	RecordActionLockAcquire("acquired", 10*time.Millisecond)
	RecordActionLockAcquire("busy", 200*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_action_lock_acquire_total") {
		t.Error("Expected browsergate_action_lock_acquire_total metric")
	}
	if !strings.Contains(body, "browsergate_action_lock_wait_seconds") {
		t.Error("Expected browsergate_action_lock_wait_seconds metric")
	}
}

func TestRecordStartupElectionCountsLaunchesAndAttaches(t *testing.T) {
	RecordStartupElection("rendezvous")
	RecordStartupElection("discovery")
	RecordStartupElection("launch")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_startup_elections_total") {
		t.Error("Expected browsergate_startup_elections_total metric")
	}
	if !strings.Contains(body, "browsergate_startup_launches_total") {
		t.Error("Expected browsergate_startup_launches_total metric")
	}
	if !strings.Contains(body, "browsergate_startup_attaches_total") {
		t.Error("Expected browsergate_startup_attaches_total metric")
	}
}

func TestRecordOrphansRemoved(t *testing.T) {
	RecordOrphansRemoved(3)
	RecordOrphansRemoved(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_registry_orphans_removed_total") {
		t.Error("Expected browsergate_registry_orphans_removed_total metric")
	}
}

func TestUpdateRegistrySize(t *testing.T) {
	UpdateRegistrySize(4)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_registry_size 4") {
		t.Error("Expected registry_size to be 4")
	}
}

func TestUpdateActionLockHolderTTLClampsNegative(t *testing.T) {
	UpdateActionLockHolderTTL(-5 * time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "browsergate_action_lock_holder_ttl_seconds 0") {
		t.Error("Expected negative TTL to clamp to 0")
	}
}

func TestStartMemoryCollector(t *testing.T) {
	stopCh := make(chan struct{})

	go StartMemoryCollector(50*time.Millisecond, stopCh)

	time.Sleep(150 * time.Millisecond)

	close(stopCh)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "browsergate_memory_usage_bytes") {
		t.Error("Expected browsergate_memory_usage_bytes metric")
	}
	if !strings.Contains(body, "browsergate_memory_sys_bytes") {
		t.Error("Expected browsergate_memory_sys_bytes metric")
	}
	if !strings.Contains(body, "browsergate_goroutines") {
		t.Error("Expected browsergate_goroutines metric")
	}
}
