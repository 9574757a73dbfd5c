package agora

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agora/config"
	"github.com/hupe1980/agora/model"
	"github.com/hupe1980/agora/model/anthropic"
	"github.com/hupe1980/agora/model/openai"
	"github.com/hupe1980/agora/tool/mcp"
)

// NewModel builds the configured completion model. The static provider
// returns nil.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderStatic, "":
		return nil, nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// NewDelegates creates lazy MCP delegates. No connection is made until a
// delegate is first used.
func NewDelegates(cfgs []config.DelegateConfig) []*mcp.Delegate {
	out := make([]*mcp.Delegate, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, mcp.New(c.Name, func(o *mcp.Options) {
			o.Endpoint = c.Endpoint
			o.Command = c.Command
			if c.Tool != "" {
				o.ToolName = c.Tool
			}
		}))
	}
	return out
}
