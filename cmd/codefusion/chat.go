package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/lukas-holzner/codefusion-hackathon/internal/config"
	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
)

// runChatCommand handles "codefusion chat <title> [-- description]". It
// runs one preparation conversation in memory against the configured
// provider. Nothing is persisted.
func runChatCommand(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Keep the transcript readable: only warnings reach the terminal.
	logger := config.NewLogger(stderr, slog.LevelWarn, cfg.LogFormat)

	prov, err := newProviders(cfg, logger)
	if err != nil {
		return err
	}
	proc := conversation.NewProcessor(prov.chat, conversation.Options{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.RequestTimeout,
	}, logger, nil)

	title, description := splitChatArgs(args)
	name := os.Getenv("USER")
	if name == "" {
		name = "there"
	}

	return runChat(ctx, stdin, stdout, proc,
		conversation.Meeting{Title: title, Description: description},
		conversation.Participant{Name: name},
	)
}

// splitChatArgs joins the words before "--" into the title and those
// after it into the description.
func splitChatArgs(args []string) (title, description string) {
	if i := slices.Index(args, "--"); i >= 0 {
		return strings.Join(args[:i], " "), strings.Join(args[i+1:], " ")
	}
	return strings.Join(args, " "), ""
}

var chatExitWords = []string{"exit", "quit", "bye"}

// runChat drives a conversation from line-based input until the
// assistant ends it, the user types an exit word, or input runs out.
func runChat(ctx context.Context, in io.Reader, out io.Writer, proc *conversation.Processor, m conversation.Meeting, who conversation.Participant) error {
	st := proc.Start(ctx, m, who)
	printLastReply(out, st)
	if len(st.Agenda) > 0 {
		printAgenda(out, st.Agenda)
	}

	scanner := bufio.NewScanner(in)
	for !st.Finished {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if slices.Contains(chatExitWords, strings.ToLower(line)) {
			break
		}

		before := st.Agenda
		st = proc.Reply(ctx, st, line)
		printLastReply(out, st)
		if !slices.Equal(before, st.Agenda) {
			printAgenda(out, st.Agenda)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	fmt.Fprintln(out)
	if st.Finished {
		fmt.Fprintln(out, "Preparation finished.")
	}
	if len(st.Agenda) > 0 {
		printAgenda(out, st.Agenda)
	}
	return nil
}

func printLastReply(out io.Writer, st conversation.State) {
	if n := len(st.Messages); n > 0 {
		fmt.Fprintf(out, "assistant: %s\n", st.Messages[n-1].Text)
	}
}

func printAgenda(out io.Writer, items []conversation.AgendaItem) {
	fmt.Fprintln(out, "agenda:")
	for i, it := range items {
		fmt.Fprintf(out, "  %d. %s\n", i+1, it.Text)
	}
}
