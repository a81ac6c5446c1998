package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"sync/atomic"

	"nutrivision-server-go/src/configs"
	"nutrivision-server-go/src/core/types"
	"nutrivision-server-go/src/core/utils"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	// JPEGQuality 目标编码质量因子
	JPEGQuality = 85
	// MaxEdge 长边像素上限，只缩小不放大
	MaxEdge = 1200
	// MaxPayloadBytes 推理服务的载荷上限（解码后约20MB）
	MaxPayloadBytes = 20 * 1024 * 1024
	// TargetFormat 固定的目标编码格式
	TargetFormat = "jpeg"
)

// transcodeAttempt 一次转码尝试的配置
type transcodeAttempt struct {
	Name       string
	Resize     bool // 长边缩放到MaxEdge以内
	AutoOrient bool // 按EXIF方向信息旋转
}

// 有序尝试列表：主路径失败后以精简配置回退，再失败才报错
var defaultAttempts = []transcodeAttempt{
	{Name: "primary", Resize: true, AutoOrient: true},
	{Name: "fallback", Resize: false, AutoOrient: false},
}

// Normalizer 把任意上传图片规整为尺寸受限的JPEG载荷
type Normalizer struct {
	validator *SecurityValidator
	logger    *utils.Logger
	attempts  []transcodeAttempt
	metrics   *Metrics

	// 可替换的单次转码实现
	transcodeFunc func(raw []byte, attempt transcodeAttempt) (*NormalizedImage, error)
}

// NewNormalizer 创建图片规整器
func NewNormalizer(config *configs.SecurityConfig, logger *utils.Logger) *Normalizer {
	n := &Normalizer{
		validator: NewSecurityValidator(config, logger),
		logger:    logger,
		attempts:  defaultAttempts,
		metrics:   &Metrics{},
	}
	n.transcodeFunc = n.transcode
	return n
}

// Normalize 验证并转码上传的图片，失败时返回ImageProcessingError
func (n *Normalizer) Normalize(raw []byte, declaredMIME string) (*NormalizedImage, error) {
	atomic.AddInt64(&n.metrics.TotalProcessed, 1)

	declaredFormat := FormatFromMIME(declaredMIME)
	validation := n.validator.ValidateBytes(raw, declaredFormat)
	if !validation.IsValid {
		atomic.AddInt64(&n.metrics.FailedValidations, 1)
		return nil, types.NewImageProcessingError("image validation failed", validation.Err)
	}

	var causes []error
	for i, attempt := range n.attempts {
		normalized, err := n.transcodeFunc(raw, attempt)
		if err != nil {
			causes = append(causes, fmt.Errorf("%s: %w", attempt.Name, err))
			n.logger.Warn(fmt.Sprintf("图片转码尝试失败 attempt=%s: %v", attempt.Name, err))
			continue
		}
		if i > 0 {
			atomic.AddInt64(&n.metrics.FallbackUsed, 1)
		}
		n.logger.Debug("图片转码完成 %v", map[string]interface{}{
			"attempt": attempt.Name,
			"width":   normalized.Width,
			"height":  normalized.Height,
			"size":    len(normalized.Data),
		})
		return normalized, nil
	}

	atomic.AddInt64(&n.metrics.FailedTranscodes, 1)
	return nil, types.NewImageProcessingError("image conversion failed after multiple attempts", causes...)
}

// transcode 执行单次解码-变换-编码
func (n *Normalizer) transcode(raw []byte, attempt transcodeAttempt) (*NormalizedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if attempt.AutoOrient {
		img = applyOrientation(img, readOrientation(raw))
	}

	if attempt.Resize {
		bounds := img.Bounds()
		if bounds.Dx() > MaxEdge || bounds.Dy() > MaxEdge {
			img = imaging.Fit(img, MaxEdge, MaxEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if buf.Len() > MaxPayloadBytes {
		return nil, fmt.Errorf("encoded payload too large: %d bytes, limit %d", buf.Len(), MaxPayloadBytes)
	}

	data := buf.Bytes()
	bounds := img.Bounds()
	return &NormalizedImage{
		Data:   data,
		Base64: base64.StdEncoding.EncodeToString(data),
		Format: TargetFormat,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// readOrientation 读取EXIF方向标签，缺失或损坏时按1（不旋转）处理
func readOrientation(raw []byte) int {
	meta, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 1
	}
	return orientation
}

// applyOrientation 按EXIF orientation值1-8做几何校正
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// GetMetrics 获取处理统计信息
func (n *Normalizer) GetMetrics() Metrics {
	return Metrics{
		TotalProcessed:    atomic.LoadInt64(&n.metrics.TotalProcessed),
		FallbackUsed:      atomic.LoadInt64(&n.metrics.FallbackUsed),
		FailedValidations: atomic.LoadInt64(&n.metrics.FailedValidations),
		FailedTranscodes:  atomic.LoadInt64(&n.metrics.FailedTranscodes),
	}
}
