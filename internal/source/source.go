// Package source yields claim records lazily, one at a time.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// maxLineBytes bounds a single claim line. Generated claims with attached
// documents can be large.
const maxLineBytes = 8 << 20

// Source is a finite, pull-based sequence of claims. Next returns io.EOF once
// the sequence is exhausted. A source is not restartable.
type Source interface {
	Next(ctx context.Context) (model.ClaimRecord, error)
}

// FileSource reads newline-delimited JSON claims from a file
type FileSource struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenDir opens the claims file inside a data directory
func OpenDir(dataDir string) (*FileSource, error) {
	return OpenFile(filepath.Join(dataDir, config.ClaimsFile))
}

// OpenFile opens an NDJSON claims file for lazy reading
func OpenFile(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &FileSource{
		path:    path,
		file:    file,
		scanner: scanner,
	}, nil
}

// Next reads the next claim, skipping blank lines and # comments
func (s *FileSource) Next(ctx context.Context) (model.ClaimRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.ClaimRecord{}, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return model.ClaimRecord{}, eris.Wrapf(err, "source: scan %s", s.path)
			}
			return model.ClaimRecord{}, io.EOF
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		return parseRecord(line, s.path, s.line)
	}
}

// Close releases the underlying file
func (s *FileSource) Close() error {
	return s.file.Close()
}

func parseRecord(line []byte, path string, lineNo int) (model.ClaimRecord, error) {
	var rec model.ClaimRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return model.ClaimRecord{}, eris.Wrapf(err, "source: %s:%d: malformed claim", path, lineNo)
	}
	if len(rec.Payload) == 0 || string(rec.Payload) == "null" {
		return model.ClaimRecord{}, eris.Errorf("source: %s:%d: claim has no payload", path, lineNo)
	}
	if !rec.Metadata.PostProcess.Valid() {
		return model.ClaimRecord{}, eris.Errorf("source: %s:%d: unknown post-process action %q", path, lineNo, rec.Metadata.PostProcess)
	}
	if rec.Key == "" {
		rec.Key = model.DeriveKey(rec.Payload)
	}
	return rec, nil
}

// SliceSource serves claims from memory
type SliceSource struct {
	records []model.ClaimRecord
	pos     int
}

// FromSlice creates a source over the given records
func FromSlice(records ...model.ClaimRecord) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record or io.EOF
func (s *SliceSource) Next(ctx context.Context) (model.ClaimRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ClaimRecord{}, err
	}
	if s.pos >= len(s.records) {
		return model.ClaimRecord{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// Pulled reports how many records have been handed out
func (s *SliceSource) Pulled() int {
	return s.pos
}
