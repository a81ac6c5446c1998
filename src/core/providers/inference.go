package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	imageproc "nutrivision-server-go/src/core/image"
	"nutrivision-server-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// RequestTimeout 单次推理调用的硬性时钟预算
const RequestTimeout = 60 * time.Second

// Config 推理提供者配置
type Config struct {
	Type        string // openai / ollama
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Provider 推理提供者，同步调用多模态/文本API
type Provider struct {
	config *Config
	logger *utils.Logger

	openaiClient *openai.Client // 用于OpenAI类型
	httpClient   *http.Client   // 用于Ollama类型
}

// OllamaRequest Ollama API请求结构
type OllamaRequest struct {
	Model    string                 `json:"model"`
	Messages []OllamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaMessage Ollama消息结构
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片
}

// OllamaResponse Ollama API响应结构
type OllamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// NewProvider 创建推理提供者
func NewProvider(config *Config, logger *utils.Logger) (*Provider, error) {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	provider := &Provider{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: RequestTimeout},
	}

	if err := provider.initialize(); err != nil {
		return nil, err
	}
	return provider, nil
}

// initialize 根据类型初始化对应的客户端
func (p *Provider) initialize() error {
	switch strings.ToLower(p.config.Type) {
	case "openai":
		if p.config.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}

		clientConfig := openai.DefaultConfig(p.config.APIKey)
		if p.config.BaseURL != "" {
			clientConfig.BaseURL = p.config.BaseURL
		}
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	case "ollama":
		// Ollama不需要API key，只需要确保有BaseURL
		if p.config.BaseURL == "" {
			p.config.BaseURL = "http://localhost:11434"
		}

	default:
		return fmt.Errorf("不支持的推理提供者类型: %s", p.config.Type)
	}

	p.logger.Debug("推理Provider初始化成功 %v", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
	})

	return nil
}

// ChatWithImage 发送指令文本+内联base64图片，返回完整文本响应
func (p *Provider) ChatWithImage(ctx context.Context, prompt string, img *imageproc.NormalizedImage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	switch strings.ToLower(p.config.Type) {
	case "openai":
		return p.openaiChatWithImage(ctx, prompt, img)
	case "ollama":
		return p.ollamaChat(ctx, prompt, []string{img.Base64})
	default:
		return "", fmt.Errorf("不支持的推理提供者类型: %s", p.config.Type)
	}
}

// Chat 纯文本推理调用
func (p *Provider) Chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	switch strings.ToLower(p.config.Type) {
	case "openai":
		return p.openaiChat(ctx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		})
	case "ollama":
		return p.ollamaChat(ctx, prompt, nil)
	default:
		return "", fmt.Errorf("不支持的推理提供者类型: %s", p.config.Type)
	}
}

func (p *Provider) openaiChatWithImage(ctx context.Context, prompt string, img *imageproc.NormalizedImage) (string, error) {
	visionMessage := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:image/%s;base64,%s", img.Format, img.Base64),
				},
			},
		},
	}

	return p.openaiChat(ctx, []openai.ChatCompletionMessage{visionMessage})
}

func (p *Provider) openaiChat(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := p.openaiClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       p.config.ModelName,
			Messages:    messages,
			MaxTokens:   p.config.MaxTokens,
			Temperature: float32(p.config.Temperature),
			TopP:        float32(p.config.TopP),
		},
	)
	if err != nil {
		p.logger.Error(fmt.Sprintf("OpenAI API调用失败: %v", err))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ollamaChat 调用Ollama chat API，images为空时退化为纯文本请求
func (p *Provider) ollamaChat(ctx context.Context, prompt string, images []string) (string, error) {
	request := OllamaRequest{
		Model: p.config.ModelName,
		Messages: []OllamaMessage{
			{Role: "user", Content: prompt, Images: images},
		},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": p.config.Temperature,
			"top_p":       p.config.TopP,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("序列化Ollama请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("创建Ollama请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error(fmt.Sprintf("Ollama API调用失败: %v", err))
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("Ollama API返回错误: %d %s", resp.StatusCode, string(body))
	}

	var response OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("解析Ollama响应失败: %w", err)
	}

	return response.Message.Content, nil
}

// GetConfig 获取配置信息
func (p *Provider) GetConfig() *Config {
	return p.config
}
