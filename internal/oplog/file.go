package oplog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"go.mongodb.org/mongo-driver/bson"
)

// FileSource replays a dumped oplog: a file of concatenated BSON documents as
// written by `mongodump --oplog` (oplog.bson). The filter is applied client
// side. Unlike a live tail the file ends, and Next returns io.EOF.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Open opens the file for one pass.
func (s *FileSource) Open(ctx context.Context, f Filter) (Cursor, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open oplog file: %w", err)
	}
	return &fileCursor{file: file, r: bufio.NewReader(file), filter: f}, nil
}

type fileCursor struct {
	file   *os.File
	r      *bufio.Reader
	filter Filter
}

// Next returns the next entry matching the filter.
func (c *fileCursor) Next(ctx context.Context) (Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		raw, err := bson.NewFromIOReader(c.r)
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err != nil {
			return Record{}, fmt.Errorf("read oplog file: %w", err)
		}
		rec, err := Decode(raw)
		if err != nil {
			return Record{}, err
		}
		if c.filter.Match(rec) {
			return rec, nil
		}
	}
}

// Close closes the file.
func (c *fileCursor) Close(ctx context.Context) error {
	return c.file.Close()
}

// WriteFile writes records as an oplog.bson stream readable by FileSource.
func WriteFile(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create oplog file: %w", err)
	}
	w := bufio.NewWriter(file)
	for _, r := range records {
		raw, err := Encode(r)
		if err != nil {
			file.Close()
			return err
		}
		if _, err := w.Write(raw); err != nil {
			file.Close()
			return fmt.Errorf("write oplog file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush oplog file: %w", err)
	}
	return file.Close()
}
