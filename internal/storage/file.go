package storage

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const fileFormatVersion = 1

// File is a KV persisted as a single JSON document. The parent directory
// is created with mode 0700 and the file is written with mode 0600 since
// it holds bearer credentials. Every write replaces the file atomically.
//
// With a passphrase, values are sealed with XChaCha20-Poly1305 under a key
// derived by Argon2id; the salt and nonce travel in the document.
type File struct {
	path       string
	passphrase []byte
	salt       []byte
	key        []byte // derived once per salt

	mu     sync.Mutex
	values map[string]string
	loaded bool
}

type fileDocument struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values,omitempty"`
	Salt    []byte            `json:"salt,omitempty"`
	Nonce   []byte            `json:"nonce,omitempty"`
	Sealed  []byte            `json:"sealed,omitempty"`
}

// NewFile returns a file-backed KV. Nothing is read until first use.
func NewFile(path, passphrase string) *File {
	f := &File{path: path}
	if passphrase != "" {
		f.passphrase = []byte(passphrase)
	}
	return f
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return "", false, err
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	next := maps.Clone(f.values)
	if next == nil {
		next = make(map[string]string)
	}
	next[key] = value
	if err := f.flush(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *File) Delete(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	next := maps.Clone(f.values)
	for _, key := range keys {
		delete(next, key)
	}
	if len(next) == len(f.values) {
		return nil
	}
	if err := f.flush(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// ensureLoaded reads the document on first use. Caller holds f.mu.
func (f *File) ensureLoaded() error {
	if f.loaded {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.values = make(map[string]string)
			f.loaded = true
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", ErrUnavailable, f.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrUnavailable, f.path, err)
	}
	if doc.Version != fileFormatVersion {
		return fmt.Errorf("%w: %s has unsupported version %d", ErrUnavailable, f.path, doc.Version)
	}

	values, err := f.open(&doc)
	if err != nil {
		return err
	}
	f.values = values
	f.loaded = true
	return nil
}

// flush writes values as the whole document through a temp file and
// rename. f.values is only replaced by the caller once this succeeds.
// Caller holds f.mu.
func (f *File) flush(values map[string]string) error {
	doc, err := f.seal(values)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token store: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(f.path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("%w: creating directory %s: %v", ErrUnavailable, directory, err)
	}

	tmp, err := os.CreateTemp(directory, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %v", ErrUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing temp file: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrUnavailable, f.path, err)
	}
	return nil
}

func (f *File) seal(values map[string]string) (*fileDocument, error) {
	doc := &fileDocument{Version: fileFormatVersion}
	if f.passphrase == nil {
		doc.Values = values
		return doc, nil
	}

	plaintext, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshaling values: %w", err)
	}

	if f.key == nil {
		f.salt = make([]byte, 16)
		if _, err := rand.Read(f.salt); err != nil {
			return nil, fmt.Errorf("generating salt: %w", err)
		}
		f.key = deriveKey(f.passphrase, f.salt)
	}
	doc.Salt = f.salt
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	doc.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(doc.Nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	doc.Sealed = aead.Seal(nil, doc.Nonce, plaintext, nil)
	return doc, nil
}

func (f *File) open(doc *fileDocument) (map[string]string, error) {
	if doc.Sealed == nil {
		if doc.Values == nil {
			return make(map[string]string), nil
		}
		return doc.Values, nil
	}
	if f.passphrase == nil {
		return nil, fmt.Errorf("%w: %s is encrypted and no passphrase is configured", ErrUnavailable, f.path)
	}

	key := deriveKey(f.passphrase, doc.Salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, doc.Nonce, doc.Sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting %s: wrong passphrase or corrupted file", ErrUnavailable, f.path)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnavailable, f.path, err)
	}
	f.salt, f.key = doc.Salt, key
	return values, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}
