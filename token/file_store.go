package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileStore persists the credential record as a JSON document keyed by the storage key
type FileStore struct {
	path   string
	key    string
	sealer *Sealer
	mu     sync.Mutex
}

var _ Store = (*FileStore)(nil)

type FileStoreOption func(*FileStore)

// WithSealer encrypts the record at rest
func WithSealer(sealer *Sealer) FileStoreOption {
	return func(s *FileStore) {
		s.sealer = sealer
	}
}

func NewFileStore(path, key string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[NewFileStore] path is required")
	}
	if key == "" {
		return nil, errors.New("[NewFileStore] storage key is required")
	}

	s := &FileStore{path: path, key: key}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileStore) Save(_ context.Context, pair Pair) error {
	if !pair.Valid() {
		return ErrInvalidPair
	}

	value, err := s.encode(pair)
	if err != nil {
		return fmt.Errorf("[FileStore Save] %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readDocument()
	doc[s.key] = value
	if err := s.writeDocument(doc); err != nil {
		return fmt.Errorf("[FileStore Save] %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.readDocument()[s.key]
	if !ok {
		return Pair{}, false
	}

	pair, err := s.decode(value)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Stored credentials unreadable, treating as absent")
		return Pair{}, false
	}
	if !pair.Valid() {
		log.Debug().Str("path", s.path).Msg("Stored credentials incomplete, treating as absent")
		return Pair{}, false
	}
	return pair, true
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readDocument()
	delete(doc, s.key)

	if len(doc) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("[FileStore Clear] %w", err)
		}
		return nil
	}
	if err := s.writeDocument(doc); err != nil {
		return fmt.Errorf("[FileStore Clear] %w", err)
	}
	return nil
}

func (s *FileStore) encode(pair Pair) (json.RawMessage, error) {
	data, err := json.Marshal(toRecord(pair))
	if err != nil {
		return nil, err
	}
	if s.sealer == nil {
		return data, nil
	}

	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(sealed))
}

func (s *FileStore) decode(value json.RawMessage) (Pair, error) {
	data := []byte(value)
	if s.sealer != nil {
		var encoded string
		if err := json.Unmarshal(value, &encoded); err != nil {
			return Pair{}, fmt.Errorf("expected sealed record: %w", err)
		}
		sealed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Pair{}, err
		}
		if data, err = s.sealer.Open(sealed); err != nil {
			return Pair{}, err
		}
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return Pair{}, err
	}
	return r.pair(), nil
}

// readDocument returns the stored document, or an empty one when the file is
// missing or malformed
func (s *FileStore) readDocument() map[string]json.RawMessage {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.path).Msg("Failed to read credential file")
		}
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Credential file is malformed")
		return make(map[string]json.RawMessage)
	}
	return doc
}

// writeDocument replaces the file atomically so a crash never leaves a torn record
func (s *FileStore) writeDocument(doc map[string]json.RawMessage) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
