package loader

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hearth-labs/corpusqa/internal/model"
)

// LoadDir walks dir and loads every supported file (.md, .txt, .pdf) as a
// document. The document ID is the slash-separated path relative to dir, so
// re-ingesting the same tree yields the same IDs. Files are visited in
// lexical order.
func LoadDir(dir string) ([]model.Document, error) {
	var docs []model.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" && ext != ".pdf" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		doc, err := LoadFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", rel, err)
		}
		doc.ID = filepath.ToSlash(rel)
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// LoadFile reads a single file into a document. The caller usually
// overwrites the ID; by default it is the base name.
func LoadFile(path string) (model.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = readPDF(path)
	default:
		text, err = readPlain(path)
	}
	if err != nil {
		return model.Document{}, err
	}
	return model.Document{
		ID:   filepath.Base(path),
		Text: text,
		Metadata: map[string]string{
			"path":   path,
			"format": strings.TrimPrefix(ext, "."),
		},
	}, nil
}

func readPlain(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
