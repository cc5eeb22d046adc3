package main

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"brightthread/internal/agent"
	"brightthread/internal/config"
	"brightthread/internal/inventory"
	"brightthread/internal/llm"
	"brightthread/internal/order"
	"brightthread/internal/policy"
	"brightthread/internal/prompt"
	"brightthread/internal/session"
	"brightthread/internal/storage"
	"brightthread/internal/understanding"
)

// app wires the stores and the dialogue engine together for a command.
type app struct {
	db          *sql.DB
	ledger      *inventory.Ledger
	orders      *order.Store
	sessions    *session.Store
	coordinator *agent.Coordinator
}

// newAppWithoutLLM opens the stores only, for commands that never talk to
// the model (seeding, inspection).
func newAppWithoutLLM(cfg config.Config, logger *zap.Logger) (*app, error) {
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	ledger, err := inventory.NewLedger(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	orders, err := order.NewStore(db, ledger, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	sessions, err := session.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{db: db, ledger: ledger, orders: orders, sessions: sessions}, nil
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	a, err := newAppWithoutLLM(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.LLM.APIKey == "" {
		a.Close()
		return nil, fmt.Errorf("no API key configured for provider %s (set BRIGHTTHREAD_LLM_API_KEY)", cfg.LLM.Provider)
	}
	client, err := llm.NewClient(cfg.LLM.Provider, llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLMTimeout(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	prompts := prompt.NewService("")
	oracle := understanding.NewOracle(client, prompts, logger)
	engine := policy.NewEngine(client, prompts, logger)
	ag := agent.New(oracle, engine, a.orders, client, prompts, logger)
	a.coordinator = agent.NewCoordinator(ag, a.sessions, logger)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
