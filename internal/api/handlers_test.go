package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/clock"
	"sms-retry-scheduler/internal/config"
	"sms-retry-scheduler/internal/persistence"
	"sms-retry-scheduler/internal/scheduler"
)

func newTestHandlers() *Handlers {
	store := persistence.NewMemoryStore()
	send := func(_ context.Context, _ scheduler.Message) (bool, error) { return true, nil }
	core := scheduler.New(scheduler.Config{}, send, store, clock.NewMock(1000), zap.NewNop(), nil)
	cfg := &config.Config{S3Bucket: "test-bucket", StatePrefix: "state", SuccessPrefix: "success", FailedPrefix: "failed"}
	return NewHandlers(zap.NewNop(), core, cfg)
}

func TestHealthEndpoint(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Get("/health", handlers.Health)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if running, ok := body["scheduler_running"].(bool); !ok || running {
		t.Fatalf("scheduler_running = %v, want false before Start()", body["scheduler_running"])
	}
}

func TestSendMessageRejectsMissingContent(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Post("/api/send", handlers.SendMessage)

	body, _ := json.Marshal(map[string]interface{}{})
	req := httptest.NewRequest("POST", "/api/send", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendMessageAccepted(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Post("/api/send", handlers.SendMessage)

	body, _ := json.Marshal(map[string]interface{}{"content": "hello"})
	req := httptest.NewRequest("POST", "/api/send", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	if out["message_id"] == "" || out["message_id"] == nil {
		t.Fatalf("response missing message_id: %v", out)
	}
}

func TestSendBulkGeneratesBulkIndexPerCopy(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Post("/api/send-bulk", handlers.SendBulk)

	body, _ := json.Marshal(map[string]interface{}{"content": "hello", "count": 3})
	req := httptest.NewRequest("POST", "/api/send-bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out struct {
		MessageIDs []string `json:"message_ids"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if len(out.MessageIDs) != 3 {
		t.Fatalf("message_ids = %v, want 3 entries", out.MessageIDs)
	}

	// Every copy succeeds on intake; the success log lists them newest first.
	recent, err := handlers.core.GetRecentSuccess(context.Background(), 3)
	if err != nil || len(recent) != 3 {
		t.Fatalf("GetRecentSuccess = %v, %v, want 3 records", recent, err)
	}
	for i, st := range recent {
		if want := 2 - i; st.Message.Metadata["bulk_index"] != want {
			t.Fatalf("recent[%d] bulk_index = %v, want %d", i, st.Message.Metadata["bulk_index"], want)
		}
	}
}

func TestSendBulkRejectsNonPositiveCount(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Post("/api/send-bulk", handlers.SendBulk)

	body, _ := json.Marshal(map[string]interface{}{"content": "hello", "count": 0})
	req := httptest.NewRequest("POST", "/api/send-bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetConfigEchoesStorageLayout(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Get("/api/config", handlers.GetConfig)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/config", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["bucket"] != "test-bucket" || out["state_prefix"] != "state" {
		t.Fatalf("config response = %v, want bucket/state_prefix echoed", out)
	}
}

func TestStartStopScheduler(t *testing.T) {
	handlers := newTestHandlers()
	app := fiber.New()
	app.Post("/api/start", handlers.StartScheduler)
	app.Post("/api/stop", handlers.StopScheduler)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/start", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("start: status = %d, err = %v", resp.StatusCode, err)
	}
	if !handlers.core.Running() {
		t.Fatalf("core not running after /api/start")
	}

	resp, err = app.Test(httptest.NewRequest("POST", "/api/stop", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("stop: status = %d, err = %v", resp.StatusCode, err)
	}
	if handlers.core.Running() {
		t.Fatalf("core still running after /api/stop")
	}
}
