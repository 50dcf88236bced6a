package data

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aricooperman/golean/model"
)

// ReadSource opens the zip below root and decodes the csv entry into rows.
// A missing file or entry is reported as an error so the reader can raise its
// invalid-source signal and continue with the next date.
func ReadSource(root string, src Source) ([][]string, error) {
	path := filepath.Join(root, src.ZipPath)
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	defer archive.Close()

	for _, file := range archive.File {
		if !strings.EqualFold(file.Name, src.Entry) {
			continue
		}
		entry, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", src.Entry, err)
		}
		defer entry.Close()

		reader := csv.NewReader(entry)
		reader.FieldsPerRecord = -1
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", src.Entry, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("entry %s not found in %s", src.Entry, path)
}

// WriteSource stores rows as the csv entry of the zip below root, creating
// parent directories. An existing archive is replaced.
func WriteSource(root string, src Source, rows [][]string) error {
	path := filepath.Join(root, src.ZipPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create source %s: %w", path, err)
	}
	defer file.Close()

	archive := zip.NewWriter(file)
	entry, err := archive.Create(src.Entry)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", src.Entry, err)
	}
	writer := csv.NewWriter(entry)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write entry %s: %w", src.Entry, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return archive.Close()
}

// LocalMapFileProvider reads map files from
// <root>/equity/<market>/map_files/<symbol>.csv.
type LocalMapFileProvider struct {
	Root   string
	Market string

	cache map[string]*MapFile
}

func NewLocalMapFileProvider(root, market string) *LocalMapFileProvider {
	return &LocalMapFileProvider{Root: root, Market: market, cache: make(map[string]*MapFile)}
}

func (p *LocalMapFileProvider) MapFile(symbol string) *MapFile {
	key := strings.ToLower(symbol)
	if file, ok := p.cache[key]; ok {
		return file
	}
	path := filepath.Join(p.Root, string(model.SecurityTypeEquity),
		strings.ToLower(p.Market), "map_files", key+".csv")
	f, err := os.Open(path)
	if err != nil {
		p.cache[key] = nil
		return nil
	}
	defer f.Close()

	file, err := ParseMapFile(symbol, f)
	if err != nil {
		p.cache[key] = nil
		return nil
	}
	p.cache[key] = file
	return file
}

// LocalFactorFileProvider reads factor files from
// <root>/equity/<market>/factor_files/<symbol>.csv.
type LocalFactorFileProvider struct {
	Root   string
	Market string

	cache map[string]*FactorFile
}

func NewLocalFactorFileProvider(root, market string) *LocalFactorFileProvider {
	return &LocalFactorFileProvider{Root: root, Market: market, cache: make(map[string]*FactorFile)}
}

func (p *LocalFactorFileProvider) FactorFile(symbol string) *FactorFile {
	key := strings.ToLower(symbol)
	if file, ok := p.cache[key]; ok {
		return file
	}
	path := filepath.Join(p.Root, string(model.SecurityTypeEquity),
		strings.ToLower(p.Market), "factor_files", key+".csv")
	f, err := os.Open(path)
	if err != nil {
		p.cache[key] = nil
		return nil
	}
	defer f.Close()

	file, err := ParseFactorFile(symbol, f)
	if err != nil {
		p.cache[key] = nil
		return nil
	}
	p.cache[key] = file
	return file
}
