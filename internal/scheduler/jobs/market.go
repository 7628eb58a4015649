package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/wonny/aegis/consult/internal/registry"
)

// MarketSource supplies the shared market context of a run
type MarketSource interface {
	MarketContext(ctx context.Context) (map[string]interface{}, error)
}

// StaticMarket serves the same context every run
type StaticMarket map[string]interface{}

// MarketContext implements MarketSource
func (m StaticMarket) MarketContext(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}(m), nil
}

// FileMarket re-reads a JSON object from path on every run,
// so an external collector can refresh it between runs.
type FileMarket struct {
	path string
}

// NewFileMarket creates a file-backed market source
func NewFileMarket(path string) *FileMarket {
	return &FileMarket{path: path}
}

// MarketContext implements MarketSource
func (m *FileMarket) MarketContext(ctx context.Context) (map[string]interface{}, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read market context: %w", err)
	}
	return DecodeMarket(data)
}

// DecodeMarket parses a JSON object keeping integers as integers
func DecodeMarket(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var market map[string]interface{}
	if err := dec.Decode(&market); err != nil {
		return nil, fmt.Errorf("decode market context: %w", err)
	}
	if market == nil {
		market = map[string]interface{}{}
	}

	return registry.NormalizeNumbers(market).(map[string]interface{}), nil
}
