package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/config"
	"github.com/RUNSTR-LLC/runstr-engine/internal/recovery"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func newTestApp(checkpoints *recovery.Service) (*fiber.App, *PushSource) {
	source := NewPushSource()
	svc := NewService(config.Config{}, nil, nil, checkpoints, source)
	app := fiber.New()
	RegisterRoutes(app.Group("/tracking"), svc, source)
	return app, source
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestSessionLifecycleHandlers(t *testing.T) {
	app, _ := newTestApp(nil)

	resp := postJSON(t, app, "/tracking/sessions", startRequest{ActivityType: activity.Running})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %d", resp.StatusCode)
	}
	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ID == "" || sess.ActivityType != activity.Running || sess.State != StateTracking {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Second start conflicts.
	if resp := postJSON(t, app, "/tracking/sessions", startRequest{ActivityType: activity.Running}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status: %d", resp.StatusCode)
	}

	resp = get(t, app, "/tracking/state")
	var state struct {
		State     string `json:"state"`
		GPSSignal string `json:"gps_signal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.State != string(StateTracking) {
		t.Fatalf("unexpected state: %+v", state)
	}

	acc := 8.0
	fix := activity.Fix{Lat: -6.2, Lng: 106.8, Timestamp: time.Now(), AccuracyM: &acc}
	if resp := postJSON(t, app, "/tracking/fixes", fix); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("push fix status: %d", resp.StatusCode)
	}

	resp = get(t, app, "/tracking/profile")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status: %d", resp.StatusCode)
	}

	var ok struct {
		OK bool `json:"ok"`
	}
	resp = postJSON(t, app, "/tracking/sessions/pause", nil)
	if json.NewDecoder(resp.Body).Decode(&ok); !ok.OK {
		t.Fatalf("pause should report ok")
	}
	resp = postJSON(t, app, "/tracking/sessions/pause", nil)
	if json.NewDecoder(resp.Body).Decode(&ok); ok.OK {
		t.Fatalf("double pause should report not ok")
	}
	resp = postJSON(t, app, "/tracking/sessions/resume", nil)
	if json.NewDecoder(resp.Body).Decode(&ok); !ok.OK {
		t.Fatalf("resume should report ok")
	}

	if resp := get(t, app, "/tracking/sessions/current"); resp.StatusCode != http.StatusOK {
		t.Fatalf("current status: %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/tracking/sessions/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status: %d", resp.StatusCode)
	}
	var final Session
	if err := json.NewDecoder(resp.Body).Decode(&final); err != nil {
		t.Fatalf("decode final: %v", err)
	}
	if final.State != StateStopped || final.EndTime == nil {
		t.Fatalf("final session not stopped: %+v", final)
	}

	// Everything after stop reports no session.
	if resp := postJSON(t, app, "/tracking/sessions/stop", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second stop status: %d", resp.StatusCode)
	}
	if resp := get(t, app, "/tracking/sessions/current"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("current after stop status: %d", resp.StatusCode)
	}
	if resp := postJSON(t, app, "/tracking/fixes", fix); resp.StatusCode != http.StatusConflict {
		t.Fatalf("push after stop status: %d", resp.StatusCode)
	}
	if resp := get(t, app, "/tracking/profile"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("profile after stop status: %d", resp.StatusCode)
	}
}

func TestStartHandlerBadRequests(t *testing.T) {
	app, _ := newTestApp(nil)

	if resp := postJSON(t, app, "/tracking/sessions", startRequest{ActivityType: "swimming"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid activity status: %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodPost, "/tracking/sessions", bytes.NewReader([]byte(`{broken`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status: %v %d", err, resp.StatusCode)
	}
}

func TestStartHandlerPermissionDenied(t *testing.T) {
	app, source := newTestApp(nil)
	source.SetPermission(false)

	if resp := postJSON(t, app, "/tracking/sessions", startRequest{ActivityType: activity.Running}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("denied start status: %d", resp.StatusCode)
	}
}

func TestBatteryAndBackgroundHandlers(t *testing.T) {
	app, _ := newTestApp(nil)

	if resp := postJSON(t, app, "/tracking/sessions", startRequest{ActivityType: activity.Running}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %d", resp.StatusCode)
	}
	defer postJSON(t, app, "/tracking/sessions/stop", nil)

	if resp := postJSON(t, app, "/tracking/battery", batteryRequest{Level: 42, Charging: false}); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("battery status: %d", resp.StatusCode)
	}
	if resp := postJSON(t, app, "/tracking/background", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("background status: %d", resp.StatusCode)
	}

	acc := 8.0
	if resp := postJSON(t, app, "/tracking/foreground", foregroundRequest{Fixes: []activity.Fix{
		{Lat: -6.2, Lng: 106.8, Timestamp: time.Now(), AccuracyM: &acc},
	}}); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("foreground status: %d", resp.StatusCode)
	}
}

func TestRecoveryHandlers(t *testing.T) {
	// No checkpoint store configured: recovery is unavailable.
	app, _ := newTestApp(nil)
	if resp := postJSON(t, app, "/tracking/sessions/some-id/recover", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("recover without store status: %d", resp.StatusCode)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	app, _ = newTestApp(recovery.NewService(client, time.Hour))

	resp := get(t, app, "/tracking/recoverable")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recoverable status: %d", resp.StatusCode)
	}
	var cps []recovery.Checkpoint
	if err := json.NewDecoder(resp.Body).Decode(&cps); err != nil {
		t.Fatalf("decode recoverable: %v", err)
	}
	if len(cps) != 0 {
		t.Fatalf("expected no recoverable sessions, got %d", len(cps))
	}

	if resp := postJSON(t, app, "/tracking/sessions/unknown/recover", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("recover unknown status: %d", resp.StatusCode)
	}
}
