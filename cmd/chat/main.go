// Command chat is a terminal REPL over the same pipeline the HTTP server
// uses. Context documents are supplied as plain-text files; dry-run and
// offline modes behave exactly as they do over HTTP.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triplehelix/helix/internal/config"
	"github.com/triplehelix/helix/internal/core"
	"github.com/triplehelix/helix/internal/logging"
	"github.com/triplehelix/helix/internal/provider"
)

type docFlags []string

func (d *docFlags) String() string { return strings.Join(*d, ",") }

func (d *docFlags) Set(value string) error {
	*d = append(*d, value)
	return nil
}

func main() {
	var docs docFlags
	flag.Var(&docs, "doc", "path to a plain-text context document (repeatable)")
	model := flag.String("model", "", "model override")
	logPath := flag.String("log", "", "append the transcript to this file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetOutput(os.Stderr)

	var contextDocuments []string
	for _, path := range docs {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read document %s: %v\n", path, err)
			os.Exit(1)
		}
		contextDocuments = append(contextDocuments, string(data))
	}

	var transcript *os.File
	if *logPath != "" {
		transcript, err = os.OpenFile(*logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open transcript log: %v\n", err)
			os.Exit(1)
		}
		defer transcript.Close()
	}

	service := core.NewService(cfg, logger, nil)

	switch {
	case cfg.DryRun:
		fmt.Println("helix chat (dry-run mode). Type 'exit' to quit.")
	case cfg.OpenAIAPIKey == "":
		fmt.Println("helix chat (offline rule-based mode). Type 'exit' to quit.")
	default:
		fmt.Printf("helix chat (model %s). Type 'exit' to quit.\n", resolvedModel(cfg, *model))
	}

	var history []provider.Turn
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		resp, err := service.Chat(context.Background(), nil, uuid.NewString(), core.ChatRequest{
			Message:          line,
			Turns:            history,
			ContextDocuments: contextDocuments,
			Model:            *model,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("bot> %s\n", resp.Response)

		history = append(history,
			provider.Turn{Role: "user", Content: line},
			provider.Turn{Role: "assistant", Content: resp.Response},
		)
		if len(history) > cfg.SessionMaxMessages {
			history = history[len(history)-cfg.SessionMaxMessages:]
		}

		if transcript != nil {
			stamp := time.Now().UTC().Format(time.RFC3339)
			fmt.Fprintf(transcript, "[%s] user: %s\n[%s] assistant: %s\n", stamp, line, stamp, resp.Response)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
		os.Exit(1)
	}
}

func resolvedModel(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.Model
}
