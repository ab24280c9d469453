// =============================================================================
// AnswerFlow 主入口
// =============================================================================
// 深度问答管线的命令行入口
//
// 使用方法:
//
//	answerflow ask "your question"              # 回答一个问题
//	answerflow ask --config config.yaml "..."   # 指定配置文件
//	answerflow ask --json "..."                 # 以 JSON 输出完整结果
//	answerflow version                          # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/answerflow/answer"
	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/graph"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/providers/openai"
	"github.com/BaSui01/answerflow/search"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// ask 命令
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	sourceTypes := fs.String("source-types", "", "Comma-separated source type filter")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "ask: missing question")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if cfg.Search.Endpoint == "" {
		fmt.Fprintln(os.Stderr, "search.endpoint is not configured (or set ANSWERFLOW_SEARCH_ENDPOINT)")
		os.Exit(1)
	}

	provider := openai.New(openai.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.CallTimeout.Std(),
	}, logger)
	gateway := llm.NewGateway(provider, provider, cfg.Gateway(), logger)

	searcher := search.NewHTTPSearcher(search.HTTPSearcherConfig{
		Endpoint: cfg.Search.Endpoint,
		APIKey:   cfg.Search.APIKey,
		Timeout:  cfg.Pipeline.SearchTimeout.Std(),
	})

	opts := []answer.RunnerOption{answer.WithRunnerLogger(logger)}
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		opts = append(opts, answer.WithRewriteCache(client))
	}

	runner := answer.NewRunner(cfg.Answer(), gateway, searcher, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var filters search.Filters
	if *sourceTypes != "" {
		filters.SourceTypes = strings.Split(*sourceTypes, ",")
	}

	if *asJSON {
		result, err := runner.RunToCompletion(ctx, question, filters)
		if err != nil {
			logger.Fatal("run failed", zap.Error(err))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}

	events, err := runner.Run(ctx, question, filters)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	streamed := false
	for ev := range events {
		switch ev.Kind {
		case graph.EventDelta:
			streamed = true
			fmt.Print(ev.Delta)
		case graph.EventFinal:
			if streamed {
				fmt.Println()
			}
			if result, ok := ev.Payload.(*answer.FinalAnswer); ok {
				if !streamed {
					fmt.Println(result.Answer())
				}
				printCitations(result)
			}
		case graph.EventError:
			fmt.Fprintf(os.Stderr, "\nrun failed: %v\n", ev.Err)
			os.Exit(1)
		}
	}
}

func printCitations(result *answer.FinalAnswer) {
	if len(result.Citations) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, c := range result.Citations {
		if c.Title != "" {
			fmt.Printf("  [%d] %s (%s)\n", i+1, c.Title, c.DocumentID)
		} else {
			fmt.Printf("  [%d] %s\n", i+1, c.DocumentID)
		}
	}
}

// =============================================================================
// 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AnswerFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AnswerFlow - multi-step deep answer pipeline

Usage:
  answerflow <command> [options]

Commands:
  ask       Answer a question through the full pipeline
  version   Show version information
  help      Show this help message

Options for 'ask':
  --config <path>        Path to configuration file (YAML)
  --json                 Print the full result as JSON instead of streaming
  --source-types <list>  Comma-separated source type filter

Examples:
  answerflow ask "who created excel"
  answerflow ask --config /etc/answerflow/config.yaml --json "who created excel"`)
}

// =============================================================================
// 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
