package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	SelectedModule map[string]string `yaml:"selected_module"`

	LLM  map[string]LLMConfig  `yaml:"LLM"`
	VLLM map[string]VLLMConfig `yaml:"VLLM"`
}

// LLMConfig 文本推理模型配置
type LLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// SecurityConfig 上传图片安全限制
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`   // 字节
	MaxPixels      int64    `yaml:"max_pixels"`      // 宽*高上限
	MaxWidth       int      `yaml:"max_width"`       // 最大宽度
	MaxHeight      int      `yaml:"max_height"`      // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"` // 允许的图片格式
}

// VLLMConfig 视觉推理模型配置
type VLLMConfig struct {
	Type        string                 `yaml:"type"`
	ModelName   string                 `yaml:"model_name"`
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	TopP        float64                `yaml:"top_p"`
	Security    SecurityConfig         `yaml:"security"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// LoadConfig 从文件加载配置,默认使用.config.yaml
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}

	config.applyEnvOverrides()
	config.applySecurityDefaults()

	return config, path, nil
}

// applyEnvOverrides 环境变量中的密钥优先于配置文件
func (c *Config) applyEnvOverrides() {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return
	}
	for name, llm := range c.LLM {
		if llm.APIKey == "" {
			llm.APIKey = key
			c.LLM[name] = llm
		}
	}
	for name, vllm := range c.VLLM {
		if vllm.APIKey == "" {
			vllm.APIKey = key
			c.VLLM[name] = vllm
		}
	}
}

func (c *Config) applySecurityDefaults() {
	for name, vllm := range c.VLLM {
		sec := &vllm.Security
		if sec.MaxFileSize <= 0 {
			sec.MaxFileSize = 20 * 1024 * 1024
		}
		if sec.MaxPixels <= 0 {
			sec.MaxPixels = 100_000_000
		}
		if sec.MaxWidth <= 0 {
			sec.MaxWidth = 12000
		}
		if sec.MaxHeight <= 0 {
			sec.MaxHeight = 12000
		}
		if len(sec.AllowedFormats) == 0 {
			sec.AllowedFormats = []string{"jpeg", "jpg", "png", "gif", "webp", "bmp", "tiff"}
		}
		c.VLLM[name] = vllm
	}
}

// SelectedVLLM 返回selected_module指定的视觉模型配置
func (c *Config) SelectedVLLM() (*VLLMConfig, error) {
	name := c.SelectedModule["VLLM"]
	if name == "" {
		return nil, fmt.Errorf("selected_module.VLLM is not set")
	}
	vllm, ok := c.VLLM[name]
	if !ok {
		return nil, fmt.Errorf("VLLM config %q not found", name)
	}
	return &vllm, nil
}

// SelectedLLM 返回selected_module指定的文本模型配置
func (c *Config) SelectedLLM() (*LLMConfig, error) {
	name := c.SelectedModule["LLM"]
	if name == "" {
		return nil, fmt.Errorf("selected_module.LLM is not set")
	}
	llm, ok := c.LLM[name]
	if !ok {
		return nil, fmt.Errorf("LLM config %q not found", name)
	}
	return &llm, nil
}
