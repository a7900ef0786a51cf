package policy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"optimal-execution/internal/config"
	"optimal-execution/internal/env"
)

// chatCompleter 为 go-openai 客户端的最小子集。
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIPolicy 通过大模型决定下单比例。
type OpenAIPolicy struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    chatCompleter
}

// NewOpenAI 使用给定配置创建大模型策略。
func NewOpenAI(cfg config.OpenAIConfig, logger *zap.Logger) (*OpenAIPolicy, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	sdkCfg.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &OpenAIPolicy{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkCfg),
	}, nil
}

func (p *OpenAIPolicy) Name() string { return "openai" }

// Act 请求模型给出比例；调用失败时返回错误，由上层决定是否回退。
func (p *OpenAIPolicy) Act(ctx context.Context, obs env.Observation) (env.Action, error) {
	if p.cfg.Model == "" {
		return 0, errors.New("openai model 不能为空")
	}

	prompt, err := BuildPrompt(obs)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	response, err := p.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		p.logger.Error("调用OpenAI失败", zap.Error(err))
		return 0, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return 0, errors.New("OpenAI 返回结果为空")
	}

	raw := strings.TrimSpace(response.Choices[0].Message.Content)
	if raw == "" {
		return 0, errors.New("OpenAI 返回内容为空")
	}

	decision, err := parseDecision(raw)
	if err != nil {
		p.logger.Error("解析模型决策失败",
			zap.Error(err),
			zap.String("raw_content", raw),
		)
		return 0, err
	}
	if err := decision.Validate(); err != nil {
		return 0, err
	}

	p.logger.Debug("AI 决策生成成功",
		zap.Float64("scale", decision.Scale),
		zap.String("reasoning", decision.Reasoning),
	)
	return env.Action(decision.Scale), nil
}
