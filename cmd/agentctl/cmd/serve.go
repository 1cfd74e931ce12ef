package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandev/claude-acp-agent/internal/acpagent"
	"github.com/kandev/claude-acp-agent/internal/common/config"
	"github.com/kandev/claude-acp-agent/internal/common/logger"
)

var (
	serveClaudeBin       string
	serveClaudeArgs      []string
	serveMaxTurnRequests int
	serveMaxTokens       int64
	serveSecurityProfile string
	serveLogLevel        string
)

func init() {
	serveCmd.Flags().StringVar(&serveClaudeBin, "claude-bin", "", "path to the Claude CLI binary (overrides config/env)")
	serveCmd.Flags().StringArrayVar(&serveClaudeArgs, "claude-arg", nil, "extra argument to pass through to the Claude CLI (repeatable)")
	serveCmd.Flags().IntVar(&serveMaxTurnRequests, "max-turn-requests", 0, "maximum prompt requests per turn (0 keeps the configured default)")
	serveCmd.Flags().Int64Var(&serveMaxTokens, "max-tokens", 0, "token budget per turn (0 disables the limit)")
	serveCmd.Flags().StringVar(&serveSecurityProfile, "security-profile", "", "permission profile: strict, moderate, or permissive (overrides config/env)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config/env)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ACP agent loop over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe loads configuration, wires the agent, and runs the ACP connection
// to completion. Grounded on agentctl's original main: load config, build a
// logger, construct the long-lived service, wait for a shutdown signal, tear
// down gracefully.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeOverrides(&cfg)

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Encoding,
		OutputPath: "stderr",
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting agentctl",
		zap.String("version", Version),
		zap.String("claude_bin", cfg.Server.ClaudeBin),
		zap.String("security_profile", string(cfg.Profile())),
	)

	agent := acpagent.New(acpagent.Config{
		Subprocess: acpagent.SubprocessConfig{
			Bin:       cfg.Server.ClaudeBin,
			ExtraArgs: cfg.Server.ClaudeArgs,
		},
		MaxTurnRequests: cfg.Server.MaxTurnRequests,
		MaxTokens:       cfg.Server.MaxTokens,
		SecurityProfile: cfg.Profile(),
		Version:         Version,
	}, log)

	conn := acp.NewAgentSideConnection(agent, os.Stdout, os.Stdin)
	agent.SetAgentConnection(conn)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- conn.Wait()
	}()

	select {
	case err := <-waitErr:
		if err != nil && !errors.Is(err, io.EOF) {
			log.WithError(err).Warn("ACP connection ended with an error")
		}
	case <-sigCtx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	agent.Close(shutdownCtx)

	log.Info("agentctl stopped")
	return nil
}

// applyServeOverrides layers CLI flags on top of the loaded config, since
// viper's own flag binding would need one BindPFlag call per key at init
// time before cfg exists; doing it here keeps serve's flags self-contained.
func applyServeOverrides(cfg *config.Config) {
	if serveClaudeBin != "" {
		cfg.Server.ClaudeBin = serveClaudeBin
	}
	if len(serveClaudeArgs) > 0 {
		cfg.Server.ClaudeArgs = append(cfg.Server.ClaudeArgs, serveClaudeArgs...)
	}
	if serveMaxTurnRequests > 0 {
		cfg.Server.MaxTurnRequests = serveMaxTurnRequests
	}
	if serveMaxTokens > 0 {
		cfg.Server.MaxTokens = serveMaxTokens
	}
	if serveSecurityProfile != "" {
		cfg.Security.Profile = serveSecurityProfile
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
}
