package main

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triaged/internal/alert"
	"github.com/linnemanlabs/triaged/internal/alert/filestore"
	"github.com/linnemanlabs/triaged/internal/alert/memstore"
	"github.com/linnemanlabs/triaged/internal/alert/pgstore"
	vc "github.com/linnemanlabs/triaged/internal/cfg"
	"github.com/linnemanlabs/triaged/internal/client"
	"github.com/linnemanlabs/triaged/internal/llm/claude"
	"github.com/linnemanlabs/triaged/internal/llm/command"
	"github.com/linnemanlabs/triaged/internal/llm/ollama"
	"github.com/linnemanlabs/triaged/internal/llm/openai"
	"github.com/linnemanlabs/triaged/internal/postgres"
	"github.com/linnemanlabs/triaged/internal/triage"
)

// tracedHTTPClient has no timeout of its own; the engine bounds each call.
func tracedHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// newProvider builds the configured text generation backend. The second
// return value names the model for startup logging.
func newProvider(c *vc.Config) (triage.Provider, string, error) {
	switch c.Backend {
	case vc.BackendOllama:
		p, err := ollama.New(c.OllamaURL, c.OllamaModel, tracedHTTPClient())
		if err != nil {
			return nil, "", fmt.Errorf("ollama backend: %w", err)
		}
		return p, p.Model(), nil
	case vc.BackendClaude:
		p := claude.New(c.ClaudeAPIKey, c.ClaudeModel)
		return p, p.Model(), nil
	case vc.BackendOpenAI:
		p := openai.New(c.OpenAIAPIKey, c.OpenAIModel, c.OpenAIURL, tracedHTTPClient())
		return p, p.Model(), nil
	case vc.BackendCommand:
		p, err := command.New(c.BackendCommand)
		if err != nil {
			return nil, "", err
		}
		return p, p.String(), nil
	default:
		return nil, "", fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// newPersister picks the durable copy of the alert queue: Postgres when a
// database URL is set, else the JSON file, else memory. The returned close
// function is never nil.
func newPersister(ctx context.Context, c *vc.Config, L log.Logger) (alert.Persister, func(), error) {
	switch {
	case c.DatabaseURL != "":
		pool, err := postgres.NewPool(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		pg, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres alert store")
		return pg, pool.Close, nil
	case c.AlertFile != "":
		L.Info(ctx, "using file alert store", "path", c.AlertFile)
		return filestore.New(c.AlertFile), func() {}, nil
	default:
		L.Info(ctx, "using in-memory alert store (no alert-file or database-url configured)")
		return memstore.New(), func() {}, nil
	}
}

// newSink returns where verdicts above the threshold are queued: the local
// store, or a remote triaged instance when alert-forward-url is set.
func newSink(c *vc.Config, local *alert.Store) (triage.AlertSink, error) {
	if c.AlertForwardURL == "" {
		return local, nil
	}
	remote, err := client.New(c.AlertForwardURL)
	if err != nil {
		return nil, fmt.Errorf("alert forwarder: %w", err)
	}
	return remote, nil
}
