package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"nutrivision-server-go/src/configs"
	"nutrivision-server-go/src/core/types"
	"nutrivision-server-go/src/core/utils"
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

func testSecurityConfig() *configs.SecurityConfig {
	return &configs.SecurityConfig{
		MaxFileSize:    20 * 1024 * 1024,
		MaxPixels:      100_000_000,
		MaxWidth:       12000,
		MaxHeight:      12000,
		AllowedFormats: []string{"jpeg", "jpg", "png", "gif", "webp", "bmp", "tiff"},
	}
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y += 100 {
		for x := 0; x < width; x += 100 {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeLargeJPEG(t *testing.T) {
	normalizer := NewNormalizer(testSecurityConfig(), newTestLogger(t))

	raw := encodeJPEG(t, 4000, 3000)
	normalized, err := normalizer.Normalize(raw, "image/jpeg")
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if normalized.Width > MaxEdge || normalized.Height > MaxEdge {
		t.Errorf("dimensions %dx%d exceed MaxEdge %d", normalized.Width, normalized.Height, MaxEdge)
	}
	if normalized.Width != 1200 || normalized.Height != 900 {
		t.Errorf("dimensions = %dx%d, want 1200x900", normalized.Width, normalized.Height)
	}
	if normalized.Format != TargetFormat {
		t.Errorf("format = %q, want %q", normalized.Format, TargetFormat)
	}
	if len(normalized.Data) > MaxPayloadBytes {
		t.Errorf("payload %d bytes exceeds limit %d", len(normalized.Data), MaxPayloadBytes)
	}

	decoded, err := base64.StdEncoding.DecodeString(normalized.Base64)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if !bytes.Equal(decoded, normalized.Data) {
		t.Error("Base64 does not round-trip to Data")
	}

	// 输出必须是可解码的JPEG
	config, format, err := image.DecodeConfig(bytes.NewReader(normalized.Data))
	if err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %q, want jpeg", format)
	}
	if config.Width != 1200 || config.Height != 900 {
		t.Errorf("encoded dimensions = %dx%d, want 1200x900", config.Width, config.Height)
	}
}

func TestNormalizeNeverUpscales(t *testing.T) {
	normalizer := NewNormalizer(testSecurityConfig(), newTestLogger(t))

	raw := encodePNG(t, 640, 480)
	normalized, err := normalizer.Normalize(raw, "image/png")
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if normalized.Width != 640 || normalized.Height != 480 {
		t.Errorf("dimensions = %dx%d, want unchanged 640x480", normalized.Width, normalized.Height)
	}
	if normalized.Format != "jpeg" {
		t.Errorf("format = %q, want jpeg (PNG input re-encoded)", normalized.Format)
	}
}

func TestNormalizeFallbackSucceeds(t *testing.T) {
	normalizer := NewNormalizer(testSecurityConfig(), newTestLogger(t))

	// 让主路径失败，回退路径走真实转码
	realTranscode := normalizer.transcodeFunc
	normalizer.transcodeFunc = func(raw []byte, attempt transcodeAttempt) (*NormalizedImage, error) {
		if attempt.Name == "primary" {
			return nil, fmt.Errorf("simulated primary failure")
		}
		return realTranscode(raw, attempt)
	}

	raw := encodeJPEG(t, 800, 600)
	normalized, err := normalizer.Normalize(raw, "image/jpeg")
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if normalized.Width != 800 || normalized.Height != 600 {
		t.Errorf("dimensions = %dx%d, want 800x600", normalized.Width, normalized.Height)
	}

	metrics := normalizer.GetMetrics()
	if metrics.FallbackUsed != 1 {
		t.Errorf("FallbackUsed = %d, want 1", metrics.FallbackUsed)
	}
}

func TestNormalizeDoubleFailure(t *testing.T) {
	normalizer := NewNormalizer(testSecurityConfig(), newTestLogger(t))

	// 非图片字节：两次转码尝试都会在解码阶段失败
	_, err := normalizer.Normalize([]byte("definitely not an image payload"), "")
	if err == nil {
		t.Fatal("Normalize returned nil error")
	}

	kind, ok := types.KindOf(err)
	if !ok || kind != types.KindImageProcessing {
		t.Fatalf("error kind = %v (tagged=%v), want %v", kind, ok, types.KindImageProcessing)
	}

	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatal("error is not a PipelineError")
	}
	if len(pe.Causes) != 2 {
		t.Fatalf("len(Causes) = %d, want 2 (primary and fallback)", len(pe.Causes))
	}

	metrics := normalizer.GetMetrics()
	if metrics.FailedTranscodes != 1 {
		t.Errorf("FailedTranscodes = %d, want 1", metrics.FailedTranscodes)
	}
}

func TestNormalizeRejectsOversizedFile(t *testing.T) {
	config := testSecurityConfig()
	config.MaxFileSize = 1024
	normalizer := NewNormalizer(config, newTestLogger(t))

	raw := encodeJPEG(t, 400, 400)
	_, err := normalizer.Normalize(raw, "image/jpeg")
	if err == nil {
		t.Fatal("Normalize returned nil error for oversized file")
	}
	kind, _ := types.KindOf(err)
	if kind != types.KindImageProcessing {
		t.Errorf("error kind = %v, want %v", kind, types.KindImageProcessing)
	}
}

func TestNormalizeRejectsDisallowedFormat(t *testing.T) {
	config := testSecurityConfig()
	config.AllowedFormats = []string{"jpeg", "jpg"}
	normalizer := NewNormalizer(config, newTestLogger(t))

	raw := encodePNG(t, 100, 100)
	_, err := normalizer.Normalize(raw, "image/png")
	if err == nil {
		t.Fatal("Normalize returned nil error for disallowed format")
	}
}

func TestApplyOrientation(t *testing.T) {
	// 2x1基准图：左红右蓝，便于追踪每种方向值的几何变换
	base := func() image.Image {
		img := image.NewRGBA(image.Rect(0, 0, 2, 1))
		img.Set(0, 0, color.RGBA{R: 255, A: 255})
		img.Set(1, 0, color.RGBA{B: 255, A: 255})
		return img
	}

	tests := []struct {
		orientation int
		width       int
		height      int
		redX        int
		redY        int
	}{
		{1, 2, 1, 0, 0},
		{2, 2, 1, 1, 0}, // 水平翻转
		{3, 2, 1, 1, 0}, // 旋转180°
		{4, 2, 1, 0, 0}, // 垂直翻转，单行不变
		{5, 1, 2, 0, 0}, // 主对角线转置
		{6, 1, 2, 0, 0}, // 顺时针90°
		{7, 1, 2, 0, 1}, // 副对角线转置
		{8, 1, 2, 0, 1}, // 逆时针90°
		{0, 2, 1, 0, 0}, // 越界值原样返回
		{9, 2, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("orientation_%d", tt.orientation), func(t *testing.T) {
			out := applyOrientation(base(), tt.orientation)
			bounds := out.Bounds()
			if bounds.Dx() != tt.width || bounds.Dy() != tt.height {
				t.Fatalf("dimensions = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), tt.width, tt.height)
			}
			r, _, b, _ := out.At(bounds.Min.X+tt.redX, bounds.Min.Y+tt.redY).RGBA()
			if r < 0x8000 || b > 0x8000 {
				t.Errorf("pixel at (%d,%d) = r=%#x b=%#x, want the red pixel", tt.redX, tt.redY, r, b)
			}
		})
	}
}

func TestReadOrientationDefaults(t *testing.T) {
	// 无EXIF数据的JPEG与无法解析的字节都按1（不旋转）处理
	if got := readOrientation(encodeJPEG(t, 10, 10)); got != 1 {
		t.Errorf("orientation for EXIF-less JPEG = %d, want 1", got)
	}
	if got := readOrientation([]byte("not a jpeg")); got != 1 {
		t.Errorf("orientation for undecodable bytes = %d, want 1", got)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg header", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{"png header", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png"},
		{"gif header", []byte("GIF89a"), "gif"},
		{"bmp header", []byte{0x42, 0x4D, 0x00, 0x00}, "bmp"},
		{"webp header", append([]byte("RIFF"), append([]byte{0, 0, 0, 0}, []byte("WEBP")...)...), "webp"},
		{"unknown defaults to jpeg", []byte("plain text"), "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.expected {
				t.Errorf("DetectFormat = %q, want %q", got, tt.expected)
			}
		})
	}
}
