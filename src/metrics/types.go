package metrics

// OnboardRequest POST /api/metrics 请求体
type OnboardRequest struct {
	Name          string  `json:"name" binding:"required"`
	Gender        string  `json:"gender" binding:"required"`
	Age           int     `json:"age" binding:"required"`
	Weight        float64 `json:"weight" binding:"required"` // kg
	HeightFt      float64 `json:"heightFt" binding:"required"`
	HeightIn      float64 `json:"heightIn"`
	ActivityLevel string  `json:"activityLevel" binding:"required"`
	PhoneNumber   string  `json:"phoneNumber" binding:"required"`
}

// UpdateRequest PUT /api/metrics/:userID 请求体，零值字段保持不变
type UpdateRequest struct {
	Weight        float64 `json:"weight"`
	ActivityLevel string  `json:"activityLevel"`
}

// MetricsResponse 计算后的健康指标
type MetricsResponse struct {
	UserID         string     `json:"userId"`
	Name           string     `json:"name"`
	BMI            float64    `json:"bmi"`
	CaloriesIntake int        `json:"caloriesIntake"`
	TargetWeight   int        `json:"targetWeight"`
	Macros         MacroSplit `json:"macros"`
}
