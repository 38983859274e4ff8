package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-recall/pipeline"
)

const chatHelp = `Available commands:
- 'quit': Exit the application
- 'memory': View memory statistics
- 'insights': View memory insights
- 'help': Show this help message
- Any other text: Chat with the assistant`

// runChat reads lines from in until EOF, quit or cancellation. Replies
// stream to out as they are generated.
func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	conversationID := uuid.NewString()
	fmt.Fprintln(out, "Type 'quit' to exit, 'memory' to view memory stats, 'help' for commands")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "memory":
			stats, err := a.memory.Stats(ctx)
			if err != nil {
				fmt.Fprintln(out, "Error:", err)
				continue
			}
			printJSON(out, "Memory Stats", stats)
			continue
		case "insights":
			ins, err := a.memory.Insights(ctx)
			if err != nil {
				fmt.Fprintln(out, "Error:", err)
				continue
			}
			printJSON(out, "Memory Insights", ins)
			continue
		}

		fmt.Fprint(out, "Assistant: ")
		streamed := false
		turn, err := a.pipeline.Run(ctx, &pipeline.Input{
			ConversationID: conversationID,
			UserMessage:    line,
			StreamCallback: func(chunk string) {
				streamed = true
				fmt.Fprint(out, chunk)
			},
		})
		if err != nil {
			fmt.Fprintln(out, pipeline.FailureResponse)
			a.logger.Error("turn failed", "error", err)
			continue
		}
		// Failed completions produce no chunks, only the fallback text.
		if !streamed {
			fmt.Fprint(out, turn.Response)
		}
		fmt.Fprintln(out)

		if ctx.Err() != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

func printJSON(out io.Writer, title string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return
	}
	fmt.Fprintf(out, "%s:\n%s\n", title, data)
}
