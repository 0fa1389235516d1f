package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/finlens-ai/finlens/pkg/cache/sqlite"
	"github.com/finlens-ai/finlens/pkg/config"
	"github.com/finlens-ai/finlens/pkg/library"
	"github.com/finlens-ai/finlens/pkg/llm"
	"github.com/finlens-ai/finlens/pkg/retriever"
)

const defaultConfigPath = "finlens.yaml"

// app bundles the wired components every command needs.
type app struct {
	cfg   *config.Config
	cache *sqlite.Cache
	lib   *library.Library
}

// openApp loads config and opens the budget cache. The default config
// path is optional; an explicit one must exist.
func openApp(configPath string) (*app, error) {
	var cfg *config.Config
	var err error

	cfg, err = config.Load(configPath)
	if err != nil {
		if configPath != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
		cfg.ApplyEnv()
	}

	var opts []sqlite.Option
	if len(cfg.Cache.Limits) > 0 {
		opts = append(opts, sqlite.WithLimits(cfg.Cache.Limits))
	}
	if !cfg.Cache.Enabled {
		opts = append(opts, sqlite.Disabled())
	}
	cache, err := sqlite.New(cfg.Cache.DBPath, cfg.Cache.TTL, opts...)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:   cfg,
		cache: cache,
		lib:   library.New(cfg.Library.Dir, cfg.Library.Books),
	}, nil
}

func (a *app) close() {
	a.cache.Close()
}

// retriever wires the passage retriever against the app's cache and
// library, with an LLM backend when an API key is configured.
func (a *app) retriever() *retriever.Retriever {
	opts := []retriever.Option{
		retriever.WithMaxChunkLength(a.cfg.Retrieval.MaxChunkLength),
		retriever.WithMaxPassages(a.cfg.Retrieval.MaxPassages),
		retriever.WithRerankThreshold(a.cfg.Retrieval.RerankThreshold),
	}
	if a.cfg.LLM.APIKey != "" {
		client := llm.NewClient(a.cfg.LLM.URL, a.cfg.LLM.APIKey, llm.WithModel(a.cfg.LLM.Model))
		opts = append(opts, retriever.WithCompleter(client))
	}
	return retriever.New(a.cache, sqlite.Key, a.lib, opts...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
