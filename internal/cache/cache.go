// Package cache is a content-addressed store mapping a source file's hash
// to its compiled bytecode, so `sentra run` skips recompiling an unchanged
// file. Grounded in the teacher's internal/database DBManager: a small
// manager type wrapping *sql.DB opened against modernc.org/sqlite, the
// pure-Go driver the teacher's own comment already prefers.
package cache

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	_ "modernc.org/sqlite"

	"sentra/internal/bytecode"
	"sentra/internal/compiler"
	"sentra/internal/object"
)

// Store is a sqlite-backed bytecode cache at a single file path.
type Store struct {
	db    *sql.DB
	group singleflight.Group
}

// Open creates or opens the cache database at path, creating its schema if
// absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS bytecode_cache (
		hash TEXT PRIMARY KEY,
		constants BLOB,
		instructions BLOB,
		created_at INTEGER
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the cache key for source: a blake2b-256 digest, hex encoded.
func Key(source []byte) string {
	sum := blake2b.Sum256(source)
	return fmt.Sprintf("%x", sum)
}

// Lookup returns the cached bytecode for key, if present.
func (s *Store) Lookup(key string) (*compiler.Bytecode, bool, error) {
	var instructionsBlob, constantsBlob []byte
	row := s.db.QueryRow(
		`SELECT instructions, constants FROM bytecode_cache WHERE hash = ?`, key)
	if err := row.Scan(&instructionsBlob, &constantsBlob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	constants, err := decodeConstants(constantsBlob)
	if err != nil {
		return nil, false, err
	}

	return &compiler.Bytecode{
		Instructions: bytecode.Instructions(instructionsBlob),
		Constants:    constants,
	}, true, nil
}

// Store persists bc under key, overwriting any previous entry.
func (s *Store) Store(key string, bc *compiler.Bytecode) error {
	constantsBlob, err := encodeConstants(bc.Constants)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO bytecode_cache (hash, constants, instructions, created_at) VALUES (?, ?, ?, ?)`,
		key, constantsBlob, []byte(bc.Instructions), time.Now().Unix())
	return err
}

// CompileOnce runs compile and caches its result under key, coalescing
// concurrent callers asking for the same key into a single compilation.
func (s *Store) CompileOnce(key string, compile func() (*compiler.Bytecode, error)) (*compiler.Bytecode, error) {
	if bc, ok, err := s.Lookup(key); err != nil {
		return nil, err
	} else if ok {
		return bc, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if bc, ok, err := s.Lookup(key); err != nil {
			return nil, err
		} else if ok {
			return bc, nil
		}
		bc, err := compile()
		if err != nil {
			return nil, err
		}
		if err := s.Store(key, bc); err != nil {
			return nil, err
		}
		return bc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*compiler.Bytecode), nil
}

// Constant wire tags. Only the variants that can legally appear in a
// constant pool (spec.md §3) are encoded; a CompiledFunction constant
// (nested function literals) is not cacheable across runs since its
// instructions reference constant-pool indices of this same pool, and is
// rejected with an error instead of silently mis-encoding.
const (
	tagInt byte = iota
	tagString
)

func encodeConstants(constants []object.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(constants))); err != nil {
		return nil, err
	}
	for _, c := range constants {
		switch v := c.(type) {
		case *object.Int:
			buf.WriteByte(tagInt)
			if err := binary.Write(&buf, binary.BigEndian, v.Value); err != nil {
				return nil, err
			}
		case *object.String:
			buf.WriteByte(tagString)
			s := []byte(v.Value)
			if err := binary.Write(&buf, binary.BigEndian, uint32(len(s))); err != nil {
				return nil, err
			}
			buf.Write(s)
		default:
			return nil, fmt.Errorf("cache: constant of type %T is not cacheable", c)
		}
	}
	return buf.Bytes(), nil
}

func decodeConstants(data []byte) ([]object.Value, error) {
	buf := bytes.NewReader(data)
	var n uint32
	if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
		return nil, err
	}

	constants := make([]object.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		tag, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagInt:
			var v int64
			if err := binary.Read(buf, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			constants = append(constants, &object.Int{Value: v})
		case tagString:
			var l uint32
			if err := binary.Read(buf, binary.BigEndian, &l); err != nil {
				return nil, err
			}
			s := make([]byte, l)
			if _, err := buf.Read(s); err != nil {
				return nil, err
			}
			constants = append(constants, &object.String{Value: string(s)})
		default:
			return nil, fmt.Errorf("cache: unknown constant tag %d", tag)
		}
	}
	return constants, nil
}
