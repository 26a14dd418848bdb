// Package summarizer produces short conversation summaries for queued CRM
// deal payloads that were enqueued without one. It never interprets inbound
// messages; the orchestrator only calls it with a full transcript, and any
// failure is soft.
package summarizer

import (
	"context"
	"errors"
)

// Client is the interface for summary providers.
type Client interface {
	// Summarize returns a short commercial summary of the transcript.
	Summarize(ctx context.Context, transcript string) (string, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of summary provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

const systemPrompt = "Resuma a conversa de vendas a seguir em ate 4 frases, " +
	"em portugues, destacando o equipamento de interesse, o estagio da " +
	"negociacao e os proximos passos combinados. Nao invente informacoes."

const maxSummaryTokens = 300

// NewClient creates a summary client for the given provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, errors.New("unknown summary provider")
	}
}
