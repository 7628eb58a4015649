package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// PostgresSource reads strategy instances from consult.strategy_instances
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a database-backed instance source
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// ListActiveInstances implements contracts.InstanceSource
func (s *PostgresSource) ListActiveInstances(ctx context.Context, sectorFilter string) ([]contracts.StrategyInstance, error) {
	query := `
		SELECT id, template, parameters, priority, enabled, sectors, evolution
		FROM consult.strategy_instances
		WHERE enabled = TRUE
		ORDER BY priority DESC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query instances: %v", contracts.ErrRegistry, err)
	}
	defer rows.Close()

	var all []contracts.StrategyInstance
	for rows.Next() {
		var (
			inst          contracts.StrategyInstance
			paramsJSON    []byte
			evolutionJSON []byte
		)
		if err := rows.Scan(&inst.ID, &inst.Template, &paramsJSON, &inst.Priority, &inst.Enabled, &inst.Sectors, &evolutionJSON); err != nil {
			return nil, fmt.Errorf("%w: scan instance: %v", contracts.ErrRegistry, err)
		}

		inst.Parameters, err = decodeObject(paramsJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: instance %s parameters: %v", contracts.ErrRegistry, inst.ID, err)
		}
		if inst.Parameters == nil {
			inst.Parameters = map[string]interface{}{}
		}
		inst.Evolution, err = decodeObject(evolutionJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: instance %s evolution: %v", contracts.ErrRegistry, inst.ID, err)
		}

		all = append(all, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate instances: %v", contracts.ErrRegistry, err)
	}

	return filterActive(all, sectorFilter), nil
}

// Upsert stores an instance, replacing any existing row with the same id
func (s *PostgresSource) Upsert(ctx context.Context, inst contracts.StrategyInstance) error {
	params, err := json.Marshal(inst.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	var evolution []byte
	if inst.Evolution != nil {
		if evolution, err = json.Marshal(inst.Evolution); err != nil {
			return fmt.Errorf("marshal evolution: %w", err)
		}
	}
	sectors := inst.Sectors
	if sectors == nil {
		sectors = []string{}
	}

	query := `
		INSERT INTO consult.strategy_instances (id, template, parameters, priority, enabled, sectors, evolution, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			template = EXCLUDED.template,
			parameters = EXCLUDED.parameters,
			priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled,
			sectors = EXCLUDED.sectors,
			evolution = EXCLUDED.evolution,
			updated_at = NOW()
	`

	_, err = s.pool.Exec(ctx, query, inst.ID, inst.Template, params, inst.Priority, inst.Enabled, sectors, evolution)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", inst.ID, err)
	}
	return nil
}

// decodeObject decodes a JSON object keeping integers exact
func decodeObject(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	NormalizeNumbers(obj)
	return obj, nil
}
