package commands

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agora"
	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/invoker"
	"github.com/hupe1980/agora/model"
	"github.com/hupe1980/agora/tool"
	"github.com/hupe1980/agora/tool/mcp"
)

var mcpToolName string

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve",
	Short: "Serve a delegate tool over MCP stdio",
	Long: `Expose a delegate tool over the Model Context Protocol on stdio so
another agora instance can use this process as a participant's delegate.
Contributions come from the configured model, or from templates when the
provider is static.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := agora.NewModel(cfg.Model)
		if err != nil {
			return err
		}
		return server.ServeStdio(mcp.NewServer(mcpToolName, newSpeaker(m, cfg.Invoker.MaxTokens)))
	},
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpToolName, "tool", "speak", "Tool name to expose")
}

// newSpeaker answers delegate requests with m, or with the static templates
// when m is nil.
func newSpeaker(m model.Model, maxTokens int) mcp.SpeakFunc {
	static := invoker.NewStaticStrategy()
	return func(ctx context.Context, req tool.Request) (tool.Response, error) {
		if m == nil {
			res, err := static.Attempt(ctx, invoker.Request{
				Snapshot:    core.Snapshot{ID: req.SessionID, Topic: req.Topic, Phase: req.Phase},
				Participant: core.Participant{ID: req.ParticipantID},
			})
			if err != nil {
				return tool.Response{}, err
			}
			return tool.Response{Content: res.Statement}, nil
		}
		text, err := model.Collect(ctx, m, model.Request{
			Instructions: req.Prompt,
			Messages:     append(req.Messages, model.Message{Role: model.RoleUser, Content: fmt.Sprintf("Give your next contribution on %q.", req.Topic)}),
			MaxTokens:    maxTokens,
		})
		if err != nil {
			return tool.Response{}, err
		}
		return tool.Response{Content: text, Citations: invoker.ExtractCitations(text)}, nil
	}
}
