package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"

	"sentra/internal/lexer"
	"sentra/internal/parser"
)

// TestGoldenDisassembly compiles each testdata/*.txtar fixture's source.sntr
// file and checks the resulting disassembly against expected.disasm,
// byte-for-byte. Keeping fixtures as txtar archives means adding a case is
// one new file, not a new directory.
func TestGoldenDisassembly(t *testing.T) {
	matches, err := filepath.Glob("testdata/*.txtar")
	if err != nil {
		t.Fatalf("glob testdata: %s", err)
	}
	if len(matches) == 0 {
		t.Fatal("no golden fixtures found under testdata/")
	}

	for _, path := range matches {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read %s: %s", path, err)
			}
			archive := txtar.Parse(raw)

			var source, expected string
			for _, f := range archive.Files {
				switch f.Name {
				case "source.sntr":
					source = string(f.Data)
				case "expected.disasm":
					expected = string(f.Data)
				}
			}
			if source == "" {
				t.Fatalf("%s: missing source.sntr section", path)
			}

			tokens := lexer.NewScanner(source).ScanTokens()
			stmts := parser.NewParser(tokens).Parse()

			c := New()
			if err := c.Compile(stmts); err != nil {
				t.Fatalf("compile error: %s", err)
			}

			got := c.Bytecode().Instructions.String()
			if got != expected {
				t.Errorf("disassembly mismatch for %s:\ngot:\n%s\nwant:\n%s", path, got, expected)
			}
		})
	}
}
