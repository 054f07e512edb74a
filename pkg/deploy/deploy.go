package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ontomem/omc/pkg/helix"
	"github.com/ontomem/omc/pkg/storage"
)

// Querier is the probe surface Plan needs. *helix.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

// PlanResult reports which levels a target already serves.
type PlanResult struct {
	Target  string  `json:"target"`
	Max     Level   `json:"max_level"`
	Present []Level `json:"present"`
	Missing []Level `json:"missing"`
}

// UpToDate reports whether nothing needs deploying.
func (p *PlanResult) UpToDate() bool { return len(p.Missing) == 0 }

// Plan probes the target for each level up to max and reports which
// levels are missing. A level is present when its probe query is
// servable: an empty result still proves the query exists, only an
// unknown-query rejection marks the level missing.
func Plan(ctx context.Context, db Querier, target string, max Level) (*PlanResult, error) {
	result := &PlanResult{Target: target, Max: max}
	for _, l := range Order(max) {
		def := definitions[l]
		err := db.Query(ctx, def.ProbeQuery, probeParams(l), nil)
		switch {
		case err == nil, errors.Is(err, helix.ErrNotFound):
			result.Present = append(result.Present, l)
		default:
			result.Missing = append(result.Missing, l)
		}
	}
	return result, nil
}

// probeParams builds benign parameters for a level's probe query.
func probeParams(l Level) map[string]any {
	switch l {
	case Level0:
		return map[string]any{"user_id": "__deploy_probe__"}
	case Level1:
		return map[string]any{"memory_id": "__deploy_probe__"}
	case Level2:
		return map[string]any{"query": "__deploy_probe__", "limit": 1}
	case Level3:
		return map[string]any{"limit": 1}
	case Level4:
		return map[string]any{"memory_id": "__deploy_probe__"}
	case Level5:
		return map[string]any{"query_vector": []float32{0}, "limit": 1}
	}
	return nil
}

// Applier posts schema and query definitions to a target store.
type Applier struct {
	baseURL string
	hc      *http.Client
	store   storage.FileStore
	logger  *slog.Logger
}

// NewApplier creates an applier for the store at baseURL. Schema
// sources are read through files.
func NewApplier(baseURL string, files storage.FileStore, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 60 * time.Second},
		store:   files,
		logger:  logger.With("component", "deploy"),
	}
}

// WithHTTPClient swaps the HTTP client, mainly for tests.
func (a *Applier) WithHTTPClient(hc *http.Client) *Applier {
	a.hc = hc
	return a
}

// ApplyOptions narrows what Apply posts.
type ApplyOptions struct {
	SchemaOnly  bool
	QueriesOnly bool
}

// ApplyResult reports what was posted.
type ApplyResult struct {
	SchemaDeployed  bool `json:"schema_deployed"`
	QueriesDeployed bool `json:"queries_deployed"`
}

// Apply reads schema.hx and queries.hx from dir and posts them to the
// target's /schema and /queries endpoints. A missing source file is
// skipped with a warning; a rejected post is fatal.
func (a *Applier) Apply(ctx context.Context, dir string, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{}

	if !opts.QueriesOnly {
		content, ok, err := a.readSource(ctx, dir+"/schema.hx")
		if err != nil {
			return nil, err
		}
		if !ok {
			a.logger.Warn("schema.hx not found, skipping", "dir", dir)
		} else {
			if err := a.post(ctx, "/schema", content); err != nil {
				return nil, fmt.Errorf("deploy: schema: %w", err)
			}
			result.SchemaDeployed = true
			a.logger.Info("schema deployed", "target", a.baseURL)
		}
	}

	if !opts.SchemaOnly {
		content, ok, err := a.readSource(ctx, dir+"/queries.hx")
		if err != nil {
			return nil, err
		}
		if !ok {
			a.logger.Warn("queries.hx not found, skipping", "dir", dir)
		} else {
			if err := a.post(ctx, "/queries", content); err != nil {
				return nil, fmt.Errorf("deploy: queries: %w", err)
			}
			result.QueriesDeployed = true
			a.logger.Info("queries deployed", "target", a.baseURL)
		}
	}

	return result, nil
}

func (a *Applier) readSource(ctx context.Context, path string) ([]byte, bool, error) {
	exists, err := a.store.Exists(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("deploy: stat %s: %w", path, err)
	}
	if !exists {
		return nil, false, nil
	}
	r, err := a.store.Read(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("deploy: open %s: %w", path, err)
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("deploy: read %s: %w", path, err)
	}
	return content, true, nil
}

func (a *Applier) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := a.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
