// Package mock provides a scripted Completer for tests and offline runs.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/llm"
)

// ReplyFunc computes the response for a request.
type ReplyFunc func(req llm.Request) (string, error)

// Completer answers every request through a ReplyFunc and records what it
// was asked.
type Completer struct {
	reply ReplyFunc

	mu       sync.Mutex
	requests []llm.Request
}

// New creates a completer. A nil reply echoes the last user message.
func New(reply ReplyFunc) *Completer {
	if reply == nil {
		reply = Echo
	}
	return &Completer{reply: reply}
}

// Static replies with text to every request.
func Static(text string) *Completer {
	return New(func(llm.Request) (string, error) { return text, nil })
}

// Failing returns err for every request.
func Failing(err error) *Completer {
	return New(func(llm.Request) (string, error) { return "", err })
}

// Echo replies with the last user message.
func Echo(req llm.Request) (string, error) {
	if m, ok := core.LastUserMessage(req.Messages); ok {
		return m.Content, nil
	}
	return "", nil
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.reply(req)
}

// Stream implements llm.Completer, emitting the reply word by word.
func (c *Completer) Stream(ctx context.Context, req llm.Request, onChunk func(string)) (string, error) {
	out, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	for _, chunk := range strings.SplitAfter(out, " ") {
		if chunk != "" {
			onChunk(chunk)
		}
	}
	return out, nil
}

// Model implements llm.Modeler.
func (c *Completer) Model() string {
	return "mock"
}

// Requests returns a copy of every request received.
func (c *Completer) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}
