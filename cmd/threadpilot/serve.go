package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"threadpilot/internal/bot"
	"threadpilot/internal/chat"
	"threadpilot/internal/config"
	"threadpilot/internal/llm"
	"threadpilot/internal/mcpclient"
	"threadpilot/internal/schedule"
	"threadpilot/internal/slackgw"
	"threadpilot/internal/store"
	"threadpilot/internal/tools"
)

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewClient(llm.Options{
		Provider:  cfg.LLM.Provider,
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}

	gateway, err := slackgw.New(slackgw.Config{
		BotToken:     cfg.Slack.BotToken,
		AppToken:     cfg.Slack.AppToken,
		AllowedUsers: cfg.Slack.AllowedUsers,
	}, logger.Named("slack"))
	if err != nil {
		return err
	}

	var history store.History
	if url := strings.TrimSpace(cfg.History.RedisURL); url != "" {
		history, err = store.NewRedisHistory(url, cfg.History.TTL(), cfg.History.MaxMessages)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	} else {
		history = store.NewMemoryHistory(cfg.History.MaxMessages)
	}
	defer func() { _ = history.Close() }()

	baseTools := []tools.Tool{
		&tools.ExecCommandTool{Workdir: cfg.Tools.Workdir},
		&tools.ListFilesTool{Workdir: cfg.Tools.Workdir},
		&tools.ReadFileTool{Workdir: cfg.Tools.Workdir},
		&tools.WriteFileTool{Workdir: cfg.Tools.Workdir},
	}

	mcpCfg, err := mcpclient.LoadConfig(cfg.MCP.ConfigPath)
	if err != nil {
		return err
	}
	servers, err := mcpclient.ConnectServers(ctx, mcpCfg.Servers)
	if err != nil {
		// Partial connects are usable; log and continue with what came up.
		logger.Warn("mcp connect", zap.Error(err))
	}
	defer func() { _ = mcpclient.CloseServers(servers) }()
	mcpTools, err := mcpclient.ToolsFromServers(servers)
	if err != nil {
		logger.Warn("mcp tools", zap.Error(err))
	}
	for _, tool := range mcpTools {
		baseTools = append(baseTools, tool)
	}

	b, err := bot.New(bot.Options{
		Sink:             gateway,
		Indicators:       gateway,
		Client:           client,
		History:          history,
		Logger:           logger.Named("bot"),
		SystemPrompt:     systemPrompt(),
		Temperature:      cfg.LLM.Temperature,
		MaxTurns:         cfg.LLM.MaxTurns,
		ApprovalDeadline: cfg.Approval.Deadline(),
		AllowedTools:     allowedTools(cfg),
		ReapDelay:        cfg.Session.ReapDelay(),
		BaseTools:        baseTools,
	})
	if err != nil {
		return err
	}

	if len(cfg.Schedules) > 0 {
		runner, err := schedule.NewRunner(cfg.Schedules, func(ctx context.Context, entry schedule.Entry) error {
			go b.Inject(entry.Channel, entry.Prompt)
			return nil
		}, logger.Named("schedule"))
		if err != nil {
			return err
		}
		runner.Start()
		defer runner.Stop()
	}

	logger.Info("starting", zap.String("bot_user", gateway.BotUserID()))

	err = gateway.Run(ctx,
		func(msg chat.Inbound) { go b.HandleMessage(msg) },
		func(action chat.Action) {
			actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			b.HandleAction(actx, action)
		},
	)
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	return err
}

func allowedTools(cfg config.Config) []string {
	if len(cfg.Approval.AllowedTools) > 0 {
		return cfg.Approval.AllowedTools
	}
	// Read-only builtins skip the approval gate by default.
	return []string{"list_files", "read_file", "todo_write"}
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a coding assistant working inside a Slack thread. Keep answers in standard markdown; the surface converts it.\n")
	b.WriteString("Use todo_write to publish your plan whenever a task needs more than one step, and update it as items start and finish.\n")
	b.WriteString("Use tools for filesystem operations instead of guessing. Side-effecting tools may require the user to click Approve; if permission is declined, adjust your approach instead of retrying the same call.\n")
	b.WriteString("Keep final answers short. Long command output belongs in the activity log, not in prose.\n")
	return b.String()
}
