package cache

import (
	"path/filepath"
	"testing"

	"sentra/internal/bytecode"
	"sentra/internal/compiler"
	"sentra/internal/object"
)

func testBytecode() *compiler.Bytecode {
	return &compiler.Bytecode{
		Instructions: bytecode.Instructions(bytecode.Make(bytecode.OpAdd)),
		Constants:    []object.Value{&object.Int{Value: 1}, &object.String{Value: "hi"}},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAndLookup(t *testing.T) {
	store := openTestStore(t)

	bc := testBytecode()
	key := "deadbeef"
	if err := store.Store(key, bc); err != nil {
		t.Fatalf("store: %s", err)
	}

	got, ok, err := store.Lookup(key)
	if err != nil {
		t.Fatalf("lookup: %s", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Constants) != 2 {
		t.Fatalf("got %d constants, want 2", len(got.Constants))
	}
	i, ok := got.Constants[0].(*object.Int)
	if !ok || i.Value != 1 {
		t.Errorf("constant 0 = %+v, want Int(1)", got.Constants[0])
	}
	s, ok := got.Constants[1].(*object.String)
	if !ok || s.Value != "hi" {
		t.Errorf("constant 1 = %+v, want String(hi)", got.Constants[1])
	}
	if string(got.Instructions) != string(bc.Instructions) {
		t.Errorf("instructions mismatch: got %v want %v", got.Instructions, bc.Instructions)
	}
}

func TestLookupMiss(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Lookup("nonexistent")
	if err != nil {
		t.Fatalf("lookup: %s", err)
	}
	if ok {
		t.Fatal("expected cache miss")
	}
}

func TestCompileOnceCachesResult(t *testing.T) {
	store := openTestStore(t)

	calls := 0
	compile := func() (*compiler.Bytecode, error) {
		calls++
		return testBytecode(), nil
	}

	key := Key([]byte("let x = 1;"))
	if _, err := store.CompileOnce(key, compile); err != nil {
		t.Fatalf("compile once: %s", err)
	}
	if _, err := store.CompileOnce(key, compile); err != nil {
		t.Fatalf("compile once (cached): %s", err)
	}
	if calls != 1 {
		t.Errorf("compile ran %d times, want 1 (second call should hit the cache)", calls)
	}
}

func TestStoreRejectsCompiledFunctionConstants(t *testing.T) {
	store := openTestStore(t)

	bc := &compiler.Bytecode{
		Instructions: bytecode.Instructions{},
		Constants:    []object.Value{&object.CompiledFunction{Name: "f"}},
	}
	if err := store.Store("k", bc); err == nil {
		t.Fatal("expected an error caching a CompiledFunction constant")
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key([]byte("same source"))
	b := Key([]byte("same source"))
	if a != b {
		t.Errorf("Key is not deterministic: %s != %s", a, b)
	}
	if Key([]byte("different")) == a {
		t.Error("different sources hashed to the same key")
	}
}
