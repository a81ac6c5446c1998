package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nutrivision-server-go/src/core/utils"
	"nutrivision-server-go/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultMetricsService 健康指标HTTP服务（onboarding流程）
type DefaultMetricsService struct {
	logger *utils.TaggedLogger
	db     *gorm.DB
}

// NewDefaultMetricsService 构造函数
func NewDefaultMetricsService(logger *utils.Logger, db *gorm.DB) *DefaultMetricsService {
	return &DefaultMetricsService{
		logger: logger.WithTag("metrics"),
		db:     db,
	}
}

// Start 注册健康指标相关路由
func (s *DefaultMetricsService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.POST("/metrics", s.handleOnboard)
	apiGroup.GET("/metrics/:userID", s.handleGet)
	apiGroup.PUT("/metrics/:userID", s.handleUpdate)

	s.logger.Info("健康指标HTTP服务路由注册完成")
	return nil
}

// handleOnboard 计算并保存新用户的健康指标
func (s *DefaultMetricsService) handleOnboard(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid onboarding fields"})
		return
	}

	heightCm := HeightToCm(req.HeightFt, req.HeightIn)
	bmi := CalculateBMI(req.Weight, heightCm)

	caloriesIntake, err := CalculateCaloriesIntake(req.Weight, heightCm, req.Gender, req.ActivityLevel, req.Age)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	macros, err := CalculateMacros(caloriesIntake, req.Weight, req.Age, req.ActivityLevel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	macrosJSON, err := json.Marshal(macros)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	user := models.User{
		PublicID:    uuid.NewString(),
		PhoneNumber: req.PhoneNumber,
		Name:        req.Name,
		Metric: models.HealthMetric{
			Gender:         req.Gender,
			Age:            req.Age,
			Weight:         req.Weight,
			Height:         fmt.Sprintf("%.0f'%.0f\"", req.HeightFt, req.HeightIn),
			HeightCm:       heightCm,
			ActivityLevel:  req.ActivityLevel,
			BMI:            bmi,
			CaloriesIntake: caloriesIntake,
			TargetWeight:   TargetWeight(heightCm),
			Macros:         datatypes.JSON(macrosJSON),
		},
	}

	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Phone number already registered"})
			return
		}
		s.logger.Error(fmt.Sprintf("创建用户失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"userId":  user.PublicID,
		"metrics": s.toResponse(&user, &user.Metric),
	})
}

// handleGet 返回用户当前健康指标
func (s *DefaultMetricsService) handleGet(c *gin.Context) {
	user, metric, ok := s.findUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.toResponse(user, metric))
}

// handleUpdate 更新体重/活动水平并重新计算指标
func (s *DefaultMetricsService) handleUpdate(c *gin.Context) {
	user, metric, ok := s.findUser(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update payload"})
		return
	}

	if req.Weight > 0 {
		metric.Weight = req.Weight
	}
	if req.ActivityLevel != "" {
		metric.ActivityLevel = req.ActivityLevel
	}

	metric.BMI = CalculateBMI(metric.Weight, metric.HeightCm)
	caloriesIntake, err := CalculateCaloriesIntake(metric.Weight, metric.HeightCm, metric.Gender, metric.ActivityLevel, metric.Age)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metric.CaloriesIntake = caloriesIntake

	macros, err := CalculateMacros(caloriesIntake, metric.Weight, metric.Age, metric.ActivityLevel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	macrosJSON, err := json.Marshal(macros)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	metric.Macros = datatypes.JSON(macrosJSON)

	if err := s.db.Save(metric).Error; err != nil {
		s.logger.Error(fmt.Sprintf("更新健康指标失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, s.toResponse(user, metric))
}

// findUser 按public_id查找用户及其指标，未找到时写好错误响应
func (s *DefaultMetricsService) findUser(c *gin.Context) (*models.User, *models.HealthMetric, bool) {
	publicID := c.Param("userID")

	var user models.User
	if err := s.db.Preload("Metric").Where("public_id = ?", publicID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return nil, nil, false
		}
		s.logger.Error(fmt.Sprintf("查询用户失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return nil, nil, false
	}

	return &user, &user.Metric, true
}

func (s *DefaultMetricsService) toResponse(user *models.User, metric *models.HealthMetric) MetricsResponse {
	var macros MacroSplit
	_ = json.Unmarshal(metric.Macros, &macros)

	return MetricsResponse{
		UserID:         user.PublicID,
		Name:           user.Name,
		BMI:            metric.BMI,
		CaloriesIntake: metric.CaloriesIntake,
		TargetWeight:   metric.TargetWeight,
		Macros:         macros,
	}
}
