package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"nutrivision-server-go/src/configs"
	"nutrivision-server-go/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/bmp"  // 注册BMP解码器
	_ "golang.org/x/image/tiff" // 注册TIFF解码器
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// SecurityValidator 上传图片安全验证器
type SecurityValidator struct {
	config *configs.SecurityConfig
	logger *utils.Logger
}

// NewSecurityValidator 创建新的图片安全验证器
func NewSecurityValidator(config *configs.SecurityConfig, logger *utils.Logger) *SecurityValidator {
	return &SecurityValidator{
		config: config,
		logger: logger,
	}
}

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8}, // JPEG文件只需要前两个字节
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
	"bmp":  {0x42, 0x4D},
	"tiff": {0x49, 0x49, 0x2A, 0x00},
}

// ValidateBytes 验证原始上传字节
func (v *SecurityValidator) ValidateBytes(data []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{IsValid: false, Format: declaredFormat}

	if len(data) == 0 {
		result.Err = fmt.Errorf("图片数据为空")
		return result
	}

	// 1. 基础大小检查
	if int64(len(data)) > v.config.MaxFileSize {
		result.Err = fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize)
		v.logger.Warn("检测到超大文件", map[string]interface{}{
			"size":     len(data),
			"max_size": v.config.MaxFileSize,
			"format":   declaredFormat,
		})
		return result
	}

	// 2. 格式支持检查
	if declaredFormat != "" && !v.isFormatAllowed(declaredFormat) {
		result.Err = fmt.Errorf("不支持的格式: %s", declaredFormat)
		return result
	}

	// 3. 尝试解码图片头获取详细信息（这是最可靠的验证方式）
	return v.validateImageDecoding(data, declaredFormat)
}

// validateFileSignature 验证文件头签名
func (v *SecurityValidator) validateFileSignature(data []byte, format string) bool {
	signature, exists := imageSignatures[strings.ToLower(format)]
	if !exists {
		return false
	}

	if len(data) < len(signature) {
		return false
	}

	if !bytes.HasPrefix(data, signature) {
		return false
	}

	// WEBP需要额外验证
	if strings.ToLower(format) == "webp" && len(data) >= 12 {
		return bytes.Equal(data[8:12], []byte("WEBP"))
	}

	return true
}

// isFormatAllowed 检查格式是否被允许
func (v *SecurityValidator) isFormatAllowed(format string) bool {
	formatLower := strings.ToLower(format)
	for _, allowedFormat := range v.config.AllowedFormats {
		if strings.ToLower(allowedFormat) == formatLower {
			return true
		}
	}
	return false
}

// validateImageDecoding 验证图片解码
func (v *SecurityValidator) validateImageDecoding(data []byte, format string) ValidationResult {
	result := ValidationResult{Format: format}
	reader := bytes.NewReader(data)

	config, actualFormat, err := image.DecodeConfig(reader)
	if err != nil {
		// 无法解析图片头不直接拒绝：相机原生容器等格式交由转码回退链处理
		if format != "" && !v.validateFileSignature(data, format) {
			v.logger.Warn("文件头验证失败", map[string]interface{}{
				"declared_format": format,
				"actual_header":   fmt.Sprintf("%x", data[:min(len(data), 16)]),
			})
		}
		result.IsValid = true
		result.Format = DetectFormat(data)
		result.FileSize = int64(len(data))
		return result
	}

	// 更新实际格式
	if actualFormat != "" {
		result.Format = actualFormat
	}

	// 检查尺寸限制
	if config.Width > v.config.MaxWidth || config.Height > v.config.MaxHeight {
		result.Err = fmt.Errorf("图片尺寸超限: %dx%d，最大允许: %dx%d",
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
		return result
	}

	// 检查像素总数
	totalPixels := int64(config.Width) * int64(config.Height)
	if totalPixels > v.config.MaxPixels {
		result.Err = fmt.Errorf("像素总数超限: %d，最大允许: %d", totalPixels, v.config.MaxPixels)
		return result
	}

	result.IsValid = true
	result.Width = config.Width
	result.Height = config.Height
	result.FileSize = int64(len(data))

	v.logger.Debug("图片验证成功 %v", map[string]interface{}{
		"format": result.Format,
		"width":  result.Width,
		"height": result.Height,
		"size":   result.FileSize,
	})

	return result
}

// DetectFormat 通过魔数检测图片格式
func DetectFormat(data []byte) string {
	for _, format := range []string{"png", "gif", "webp", "bmp", "tiff", "jpeg"} {
		signature := imageSignatures[format]
		if len(data) >= len(signature) && bytes.HasPrefix(data, signature) {
			if format == "webp" {
				if len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")) {
					return "webp"
				}
				continue
			}
			return format
		}
	}
	return "jpeg" // 默认格式
}

// FormatFromMIME 从Content-Type推断格式标签
func FormatFromMIME(mime string) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "png"):
		return "png"
	case strings.Contains(mime, "gif"):
		return "gif"
	case strings.Contains(mime, "webp"):
		return "webp"
	case strings.Contains(mime, "bmp"):
		return "bmp"
	case strings.Contains(mime, "tiff"):
		return "tiff"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "jpeg"
	}
	return ""
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
