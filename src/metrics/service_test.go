package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"nutrivision-server-go/src/configs"
	"nutrivision-server-go/src/core/utils"
	"nutrivision-server-go/src/models"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	config := &configs.Config{}
	config.Log.LogLevel = "info"
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// 与 InitDB 相同的配置，唯一约束冲突必须映射为 ErrDuplicatedKey
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "metrics.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.HealthMetric{}, &models.MealRecord{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	service := NewDefaultMetricsService(newTestLogger(t), db)
	engine := gin.New()
	apiGroup := engine.Group("/api")
	if err := service.Start(context.Background(), engine, apiGroup); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return engine
}

func onboardPayload(phone string) string {
	return `{"name":"Asha","gender":"female","age":28,"weight":60,"heightFt":5,"heightIn":4,"activityLevel":"somewhat_active","phoneNumber":"` + phone + `"}`
}

func postJSON(t *testing.T, engine *gin.Engine, path, payload string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

func TestOnboardComputesMetrics(t *testing.T) {
	engine := newTestEngine(t)

	w := postJSON(t, engine, "/api/metrics", onboardPayload("+15550100"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool            `json:"success"`
		UserID  string          `json:"userId"`
		Metrics MetricsResponse `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.UserID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// 60kg at 5'4" (162.56cm): BMI 22.7, target weight round(22.5*1.6256^2)=59
	if resp.Metrics.BMI != 22.7 {
		t.Errorf("bmi = %v, want 22.7", resp.Metrics.BMI)
	}
	if resp.Metrics.TargetWeight != 59 {
		t.Errorf("targetWeight = %d, want 59", resp.Metrics.TargetWeight)
	}
	if resp.Metrics.CaloriesIntake <= 0 {
		t.Errorf("caloriesIntake = %d, want positive", resp.Metrics.CaloriesIntake)
	}
	pct := resp.Metrics.Macros.Percentages
	if sum := pct.Protein + pct.Carbs + pct.Fat; sum != 100 {
		t.Errorf("macro percentages sum = %d, want 100", sum)
	}

	// 回读保持一致
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics/"+resp.UserID, nil)
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	var got MetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if got.BMI != resp.Metrics.BMI || got.CaloriesIntake != resp.Metrics.CaloriesIntake {
		t.Errorf("GET metrics = %+v, want %+v", got, resp.Metrics)
	}
}

func TestOnboardDuplicatePhoneConflict(t *testing.T) {
	engine := newTestEngine(t)

	if w := postJSON(t, engine, "/api/metrics", onboardPayload("+15550101")); w.Code != http.StatusOK {
		t.Fatalf("first onboard status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	w := postJSON(t, engine, "/api/metrics", onboardPayload("+15550101"))
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate onboard status = %d, want 409 (body: %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already registered") {
		t.Errorf("body = %s, should report the phone number conflict", w.Body.String())
	}
}

func TestOnboardMissingFields(t *testing.T) {
	engine := newTestEngine(t)

	w := postJSON(t, engine, "/api/metrics", `{"name":"Asha"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateRecomputesMetrics(t *testing.T) {
	engine := newTestEngine(t)

	w := postJSON(t, engine, "/api/metrics", onboardPayload("+15550102"))
	if w.Code != http.StatusOK {
		t.Fatalf("onboard status = %d, want 200", w.Code)
	}
	var onboarded struct {
		UserID  string          `json:"userId"`
		Metrics MetricsResponse `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &onboarded); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/metrics/"+onboarded.UserID, strings.NewReader(`{"weight": 55}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var updated MetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}

	// 55kg at 162.56cm: BMI 20.8；低于目标体重59kg，热量预算转为+300盈余
	if updated.BMI != 20.8 {
		t.Errorf("bmi = %v, want 20.8", updated.BMI)
	}
	if updated.CaloriesIntake != 2039 {
		t.Errorf("caloriesIntake = %d, want 2039", updated.CaloriesIntake)
	}
	if updated.CaloriesIntake == onboarded.Metrics.CaloriesIntake {
		t.Error("caloriesIntake was not recomputed after the weight change")
	}
}

func TestMetricsUnknownUser(t *testing.T) {
	engine := newTestEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics/no-such-user", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
