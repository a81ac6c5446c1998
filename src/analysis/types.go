package analysis

import (
	"encoding/json"
	"time"
)

// MealRequest POST /api/meal 请求体
type MealRequest struct {
	Summary string `json:"summary"`
}

// ErrorResponse 统一错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"` // 仅调试模式返回
}

// MealRecordResponse 历史餐食记录
type MealRecordResponse struct {
	ID        string          `json:"id"`
	Facts     json.RawMessage `json:"facts"`
	Summary   string          `json:"summary"`
	CreatedAt time.Time       `json:"createdAt"`
}

// 对外错误码，与前端约定保持一致
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeImageProcessing = "IMAGE_PROCESSING_ERROR"
	CodeFoodAnalysis    = "FOOD_ANALYSIS_ERROR"
	CodeMealAnalysis    = "MEAL_ANALYSIS_ERROR"
)
