package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"nutrivision-server-go/src/configs"
	imageproc "nutrivision-server-go/src/core/image"
	"nutrivision-server-go/src/core/nutrition"
	"nutrivision-server-go/src/core/providers"
	"nutrivision-server-go/src/core/types"
	"nutrivision-server-go/src/core/utils"
	"nutrivision-server-go/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// 最大上传大小为20MB
	MAX_UPLOAD_SIZE = 20 * 1024 * 1024
)

// 操作类别，决定契约/传输错误映射到哪个对外错误码
type operation int

const (
	opFoodAnalysis operation = iota
	opMealAnalysis
)

// DefaultAnalysisService 营养分析HTTP服务
type DefaultAnalysisService struct {
	logger     *utils.TaggedLogger
	config     *configs.Config
	normalizer *imageproc.Normalizer
	extractor  *nutrition.Extractor
	analyzer   *nutrition.Analyzer
	db         *gorm.DB // 可为nil，此时不保存餐食记录
}

// NewDefaultAnalysisService 构造函数
func NewDefaultAnalysisService(config *configs.Config, logger *utils.Logger, db *gorm.DB) (*DefaultAnalysisService, error) {
	vllmConfig, err := config.SelectedVLLM()
	if err != nil {
		return nil, fmt.Errorf("读取VLLM配置失败: %w", err)
	}
	llmConfig, err := config.SelectedLLM()
	if err != nil {
		return nil, fmt.Errorf("读取LLM配置失败: %w", err)
	}

	visionProvider, err := providers.NewProvider(&providers.Config{
		Type:        vllmConfig.Type,
		ModelName:   vllmConfig.ModelName,
		BaseURL:     vllmConfig.BaseURL,
		APIKey:      vllmConfig.APIKey,
		Temperature: vllmConfig.Temperature,
		MaxTokens:   vllmConfig.MaxTokens,
		TopP:        vllmConfig.TopP,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("创建视觉推理Provider失败: %w", err)
	}

	textProvider, err := providers.NewProvider(&providers.Config{
		Type:        llmConfig.Type,
		ModelName:   llmConfig.ModelName,
		BaseURL:     llmConfig.BaseURL,
		APIKey:      llmConfig.APIKey,
		Temperature: llmConfig.Temperature,
		MaxTokens:   llmConfig.MaxTokens,
		TopP:        llmConfig.TopP,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("创建文本推理Provider失败: %w", err)
	}

	return &DefaultAnalysisService{
		logger:     logger.WithTag("analysis"),
		config:     config,
		normalizer: imageproc.NewNormalizer(&vllmConfig.Security, logger),
		extractor:  nutrition.NewExtractor(visionProvider, logger),
		analyzer:   nutrition.NewAnalyzer(textProvider, logger),
		db:         db,
	}, nil
}

// Start 实现 AnalysisService 接口，注册所有分析相关路由
func (s *DefaultAnalysisService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/analyze", s.handleAnalyzeGet)
	apiGroup.POST("/analyze", s.handleAnalyzePost)
	apiGroup.POST("/meal", s.handleMealPost)
	if s.db != nil {
		apiGroup.GET("/meals/:userID", s.handleMealsGet)
	}

	s.logger.Info("营养分析HTTP服务路由注册完成")
	return nil
}

// handleAnalyzeGet 处理GET请求（状态检查）
func (s *DefaultAnalysisService) handleAnalyzeGet(c *gin.Context) {
	c.String(http.StatusOK, fmt.Sprintf("Nutrition analysis endpoint running, schema %s", nutrition.SchemaVersion))
}

// handleAnalyzePost 处理图片分析：multipart上传 -> 规整 -> 提取营养数据
func (s *DefaultAnalysisService) handleAnalyzePost(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		// 缺少图片字段时快速拒绝，不发起任何外部调用
		s.respondPipelineError(c, opFoodAnalysis, types.NewValidationError("No image file provided"))
		return
	}
	defer file.Close()

	s.logger.Debug("收到图片分析请求 %v", map[string]interface{}{
		"filename":     header.Filename,
		"size":         header.Size,
		"content_type": header.Header.Get("Content-Type"),
	})

	raw, err := io.ReadAll(io.LimitReader(file, MAX_UPLOAD_SIZE+1))
	if err != nil {
		s.respondPipelineError(c, opFoodAnalysis, types.NewValidationError("Failed to read image data", err))
		return
	}

	normalized, err := s.normalizer.Normalize(raw, header.Header.Get("Content-Type"))
	if err != nil {
		s.logger.Warn(fmt.Sprintf("图片规整失败: %v", err))
		s.respondPipelineError(c, opFoodAnalysis, err)
		return
	}

	facts, err := s.extractor.Extract(c.Request.Context(), normalized)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("营养提取失败: %v", err))
		s.respondPipelineError(c, opFoodAnalysis, err)
		return
	}

	// user_id为可选字段，带上时保存一条餐食记录
	if userID := c.Request.FormValue("user_id"); userID != "" && s.db != nil {
		s.saveMealRecord(userID, facts)
	}

	c.JSON(http.StatusOK, facts)
}

// handleMealPost 处理餐食总结分析
func (s *DefaultAnalysisService) handleMealPost(c *gin.Context) {
	var req MealRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Summary) == "" {
		s.respondPipelineError(c, opMealAnalysis, types.NewValidationError("No meal summary provided"))
		return
	}

	insights, err := s.analyzer.Analyze(c.Request.Context(), req.Summary)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("餐食分析失败: %v", err))
		s.respondPipelineError(c, opMealAnalysis, err)
		return
	}

	c.JSON(http.StatusOK, insights)
}

// handleMealsGet 返回用户最近的餐食记录
func (s *DefaultAnalysisService) handleMealsGet(c *gin.Context) {
	publicID := c.Param("userID")

	var user models.User
	if err := s.db.Where("public_id = ?", publicID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.respondError(c, http.StatusNotFound, ErrorResponse{Error: "User not found"})
			return
		}
		s.logger.Error(fmt.Sprintf("查询用户失败: %v", err))
		s.respondError(c, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
		return
	}

	var records []models.MealRecord
	if err := s.db.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(20).
		Find(&records).Error; err != nil {
		s.logger.Error(fmt.Sprintf("查询餐食记录失败: %v", err))
		s.respondError(c, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
		return
	}

	resp := make([]MealRecordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, MealRecordResponse{
			ID:        record.PublicID,
			Facts:     json.RawMessage(record.Facts),
			Summary:   record.Summary,
			CreatedAt: record.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// saveMealRecord 保存成功的分析结果；失败只记日志，不影响响应
func (s *DefaultAnalysisService) saveMealRecord(publicID string, facts []nutrition.Fact) {
	var user models.User
	if err := s.db.Where("public_id = ?", publicID).First(&user).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("餐食记录未保存，用户不存在: %s", publicID))
		return
	}

	factsJSON, err := json.Marshal(facts)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("序列化营养数据失败: %v", err))
		return
	}

	summary, _ := nutrition.Summary(facts)
	record := models.MealRecord{
		PublicID: uuid.NewString(),
		UserID:   user.ID,
		Facts:    datatypes.JSON(factsJSON),
		Summary:  summary,
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("保存餐食记录失败: %v", err))
	}
}

// respondPipelineError 把内部错误类别翻译为对外status/code
func (s *DefaultAnalysisService) respondPipelineError(c *gin.Context, op operation, err error) {
	kind, ok := types.KindOf(err)
	if !ok {
		kind = types.KindInferenceTransport
	}

	analysisCode := CodeFoodAnalysis
	if op == opMealAnalysis {
		analysisCode = CodeMealAnalysis
	}

	// 管线错误沿用 {error: 错误码, message: 顶层消息} 的响应形态；
	// 边界校验错误保持 {error: 文本, code: 错误码}
	resp := ErrorResponse{Message: pipelineMessage(err)}
	var status int
	switch kind {
	case types.KindValidation:
		status = http.StatusBadRequest
		resp = ErrorResponse{Error: pipelineMessage(err), Code: CodeValidation}
	case types.KindImageProcessing:
		status = http.StatusUnprocessableEntity
		resp.Error = CodeImageProcessing
	case types.KindInferenceContract:
		status = http.StatusBadGateway
		resp.Error = analysisCode
	default: // 传输失败/超时
		status = http.StatusGatewayTimeout
		resp.Error = analysisCode
	}

	// 内部原因只在调试模式下返回
	if s.logger.IsDebug() {
		resp.Details = err.Error()
	}

	s.respondError(c, status, resp)
}

// pipelineMessage 取顶层错误消息，不带内部原因链
func pipelineMessage(err error) string {
	var pe *types.PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// respondError 返回错误响应
func (s *DefaultAnalysisService) respondError(c *gin.Context, statusCode int, resp ErrorResponse) {
	c.JSON(statusCode, resp)
}
