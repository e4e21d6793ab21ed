package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/vntext"
)

const oracleSystemPrompt = `Bạn là chuyên gia pháp luật Việt Nam. ` +
	`Người dùng đưa ra một cụm từ. Nhiệm vụ: xác định cụm từ đó có phải ` +
	`là một lĩnh vực pháp luật Việt Nam hợp lệ hay không (ví dụ: đất đai, ` +
	`hôn nhân gia đình, lao động, hình sự, dân sự, thuế, doanh nghiệp). ` +
	`Nếu hợp lệ, trả lời đúng một dòng: YES|ten_linh_vuc (tên chuẩn hóa ` +
	`tiếng Việt không dấu, chữ thường, nối bằng dấu gạch dưới). ` +
	`Nếu không, trả lời: NO|lý do ngắn gọn. Không trả lời gì khác.`

// ChatOracle validates whether a label names a real legal domain using
// a chat completion. Answers are a single "YES|name" or "NO|reason" line.
type ChatOracle struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// OracleConfig holds the chat oracle settings.
type OracleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewChatOracle creates a chat-based legal-domain oracle.
func NewChatOracle(cfg *OracleConfig) *ChatOracle {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &ChatOracle{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// ValidateDomain implements domain.Oracle.
func (o *ChatOracle) ValidateDomain(ctx context.Context, rawLabel string) (domain.DomainValidation, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		MaxTokens:   50,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: oracleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: rawLabel},
		},
	})
	if err != nil {
		return domain.DomainValidation{}, fmt.Errorf("domain validation request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.DomainValidation{}, fmt.Errorf("domain validation: empty response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	verdict, rest, _ := strings.Cut(answer, "|")
	verdict = strings.ToUpper(strings.TrimSpace(verdict))
	rest = strings.TrimSpace(rest)

	switch verdict {
	case "YES":
		name := vntext.NormalizeCategoryName(rest)
		if name == "" || rest == "" {
			name = vntext.NormalizeCategoryName(rawLabel)
		}
		return domain.DomainValidation{Valid: true, CanonicalName: name}, nil
	case "NO":
		o.logger.Debug("domain rejected by oracle",
			zap.String("label", rawLabel), zap.String("reason", rest))
		return domain.DomainValidation{Valid: false}, nil
	default:
		return domain.DomainValidation{}, fmt.Errorf("domain validation: unparseable answer %q", answer)
	}
}
