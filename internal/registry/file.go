package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// FileSource reads strategy instances from YAML files in a directory.
// A file may hold several documents separated by ---.
// Files are re-read on every call so edits apply to the next run.
// ⭐ SSOT: 파일 기반 인스턴스 레지스트리
type FileSource struct {
	dir string
}

// NewFileSource creates a directory-backed instance source
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// ListActiveInstances implements contracts.InstanceSource
func (s *FileSource) ListActiveInstances(ctx context.Context, sectorFilter string) ([]contracts.StrategyInstance, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrRegistry, err)
	}
	return filterActive(all, sectorFilter), nil
}

// LoadAll returns every instance, enabled or not, in file order
func (s *FileSource) LoadAll() ([]contracts.StrategyInstance, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read instance dir %s: %w", s.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(files)

	var instances []contracts.StrategyInstance
	for _, path := range files {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		instances = append(instances, loaded...)
	}

	return instances, nil
}

// LoadFile decodes every instance document in one file.
// KnownFields(true)로 오타/미사용 필드 즉시 실패
func LoadFile(path string) ([]contracts.StrategyInstance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var instances []contracts.StrategyInstance
	for {
		var rec instanceRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}

		inst, err := rec.toInstance(filepath.Base(path))
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	return instances, nil
}
