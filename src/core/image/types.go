package image

// NormalizedImage 转码后可直接发送给推理服务的图片
type NormalizedImage struct {
	Data   []byte // 编码后的字节
	Base64 string // base64文本表示
	Format string // 目标编码格式，固定为jpeg
	Width  int
	Height int
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid  bool
	Format   string // 实际格式
	Width    int
	Height   int
	FileSize int64
	Err      error
}

// Metrics 图片处理统计信息
type Metrics struct {
	TotalProcessed    int64 // 总处理数量
	FallbackUsed      int64 // 回退路径成功次数
	FailedValidations int64 // 验证失败次数
	FailedTranscodes  int64 // 所有转码尝试均失败次数
}
