package analysis

import (
	"context"

	"github.com/gin-gonic/gin"
)

// AnalysisService 定义营养分析服务接口
type AnalysisService interface {
	// 将分析相关的路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
