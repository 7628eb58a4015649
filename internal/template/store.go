package template

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// Extensions tried, in order, when resolving a template id on disk
var Extensions = []string{".j2", ".jinja", ".tmpl", ".txt"}

// FileStore reads templates from a directory; the file name without extension is the id
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed template source
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// GetTemplate reads <dir>/<id><ext>
func (s *FileStore) GetTemplate(ctx context.Context, id string) (*contracts.Template, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: invalid id %q", contracts.ErrTemplateNotFound, id)
	}

	for _, ext := range Extensions {
		body, err := os.ReadFile(filepath.Join(s.dir, id+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", id, err)
		}
		return &contracts.Template{ID: id, Body: string(body)}, nil
	}

	return nil, fmt.Errorf("%w: %s", contracts.ErrTemplateNotFound, id)
}

// MemoryStore is an in-memory template source
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewMemoryStore creates a store from id → body
func NewMemoryStore(templates map[string]string) *MemoryStore {
	m := make(map[string]string, len(templates))
	for id, body := range templates {
		m[id] = body
	}
	return &MemoryStore{templates: m}
}

// Put adds or replaces a template
func (s *MemoryStore) Put(id, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[id] = body
}

// Upsert implements Writer
func (s *MemoryStore) Upsert(ctx context.Context, tpl *contracts.Template) error {
	s.Put(tpl.ID, tpl.Body)
	return nil
}

// GetTemplate returns the template or ErrTemplateNotFound
func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (*contracts.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrTemplateNotFound, id)
	}
	return &contracts.Template{ID: id, Body: body}, nil
}

// PostgresStore reads templates from consult.templates
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a database-backed template source
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetTemplate loads one template by id
func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*contracts.Template, error) {
	query := `SELECT id, body FROM consult.templates WHERE id = $1`

	var tpl contracts.Template
	err := s.pool.QueryRow(ctx, query, id).Scan(&tpl.ID, &tpl.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query template %s: %w", id, err)
	}

	return &tpl, nil
}

// Upsert stores a template body
func (s *PostgresStore) Upsert(ctx context.Context, tpl *contracts.Template) error {
	query := `
		INSERT INTO consult.templates (id, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, tpl.ID, tpl.Body); err != nil {
		return fmt.Errorf("upsert template %s: %w", tpl.ID, err)
	}
	return nil
}

// ListFiles returns every template found in a directory
func (s *FileStore) ListFiles() ([]contracts.Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	var templates []contracts.Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !isTemplateExt(ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		tpl, err := s.GetTemplate(context.Background(), id)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	return templates, nil
}

func isTemplateExt(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
