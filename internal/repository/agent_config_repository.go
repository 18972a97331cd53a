package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/convoreach/convoreach-backend/internal/model"
)

type AgentConfigRepositoryInterface interface {
	Load() (*model.AgentConfig, error)
	Save(cfg *model.AgentConfig) error
}

// AgentConfigRepository reads the single policy row. Load is called fresh on
// every rule evaluation; operator edits apply to the very next batch.
type AgentConfigRepository struct {
	DB *sql.DB
}

func (r *AgentConfigRepository) Load() (*model.AgentConfig, error) {
	var raw []byte
	err := r.DB.QueryRow(`SELECT settings FROM agent_config WHERE id=1`).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.DefaultAgentConfig(), nil
		}
		return nil, err
	}
	var cfg model.AgentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *AgentConfigRepository) Save(cfg *model.AgentConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(`
        INSERT INTO agent_config (id, settings) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings
    `, raw)
	return err
}

var _ AgentConfigRepositoryInterface = (*AgentConfigRepository)(nil)
