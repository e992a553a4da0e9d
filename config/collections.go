package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/poiesic/corpora/core"
	"gopkg.in/yaml.v3"
)

// LoadCollections reads collection schemas from a YAML file or from every
// .yaml/.yml file of a directory. A file may hold several documents
// separated by "---". Each collection is validated.
func LoadCollections(path string) ([]*core.Collection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("collections %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("collections %s: %w", path, err)
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			files = append(files, filepath.Join(path, e.Name()))
		}
		sort.Strings(files)
	}

	var out []*core.Collection
	seen := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("collections %s: %w", file, err)
		}
		parsed, err := ParseCollections(data)
		if err != nil {
			return nil, fmt.Errorf("collections %s: %w", file, err)
		}
		for _, c := range parsed {
			if prev, ok := seen[c.ID]; ok {
				return nil, fmt.Errorf("collections %s: %w: %q already defined in %s", file, core.ErrInvalidCollection, c.ID, prev)
			}
			seen[c.ID] = file
			out = append(out, c)
		}
	}
	return out, nil
}

// ParseCollections decodes one or more YAML documents into collections.
func ParseCollections(data []byte) ([]*core.Collection, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []*core.Collection
	for {
		var c core.Collection
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := core.ValidateCollection(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, nil
}
