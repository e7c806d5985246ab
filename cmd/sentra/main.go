// cmd/sentra/main.go
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"

	"sentra/internal/cache"
	"sentra/internal/compiler"
	"sentra/internal/errors"
	"sentra/internal/introspect"
	"sentra/internal/irdump"
	"sentra/internal/lexer"
	"sentra/internal/parser"
	"sentra/internal/repl"
	"sentra/internal/vm"
)

const version = "0.1.0"

var commandAliases = map[string]string{
	"r": "run",
	"i": "repl",
	"d": "dump",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		fmt.Printf("sentra %s\n", version)
	case "run":
		runCommand(args[1:])
	case "repl":
		repl.Start(os.Stdin, os.Stdout)
	case "dump":
		dumpCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`sentra - compiler and virtual machine for the Sentra language

Usage:
  sentra run <file.sntr> [--stats] [--inspect[=:port]] [--cache=<path>]
  sentra repl
  sentra dump <file.sntr> [--pretty] [--emit-llvm]
  sentra version

Environment:
  SENTRA_DEBUG       when "1", errors print with a stack trace
  SENTRA_CACHE_DIR    overrides the default bytecode cache directory
  NO_COLOR           disables REPL prompt colorization`)
}

func compileFile(filename string) ([]byte, *compiler.Bytecode, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	scanner := lexer.NewScannerWithFile(string(source), filename)
	tokens := scanner.ScanTokens()

	p := parser.NewParserWithSource(tokens, string(source), filename)
	stmts := p.Parse()

	comp := compiler.New()
	if err := comp.Compile(stmts); err != nil {
		return source, nil, err
	}
	return source, comp.Bytecode(), nil
}

func runCommand(args []string) {
	var filename string
	var stats, useCache bool
	var inspectAddr string
	cachePath := defaultCachePath()

	for _, a := range args {
		switch {
		case a == "--stats":
			stats = true
		case a == "--inspect":
			inspectAddr = ":4040"
		case len(a) > len("--inspect=") && a[:len("--inspect=")] == "--inspect=":
			inspectAddr = a[len("--inspect="):]
		case a == "--cache":
			useCache = true
		case len(a) > len("--cache=") && a[:len("--cache=")] == "--cache=":
			useCache = true
			cachePath = a[len("--cache="):]
		default:
			filename = a
		}
	}
	if filename == "" {
		log.Fatal("sentra run: no file given")
	}

	start := time.Now()

	source, bc, err := loadBytecode(filename, useCache, cachePath)
	if err != nil {
		printRunError(err)
		os.Exit(1)
	}

	machine := vm.New(bc)

	if inspectAddr != "" {
		server := introspect.NewServer()
		machine.Hook = server
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/"+server.Session, server.Handler)
		go func() {
			log.Printf("introspect: serving ws://localhost%s/debug/%s", inspectAddr, server.Session)
			if err := http.ListenAndServe(inspectAddr, mux); err != nil {
				log.Printf("introspect: server stopped: %v", err)
			}
		}()
	}

	if err := machine.Run(); err != nil {
		printRunError(err)
		os.Exit(1)
	}

	elapsed := time.Since(start)

	if stats {
		printStats(source, bc, elapsed)
	}
}

func loadBytecode(filename string, useCache bool, cachePath string) ([]byte, *compiler.Bytecode, error) {
	if !useCache {
		_, bc, err := compileFile(filename)
		source, _ := os.ReadFile(filename)
		return source, bc, err
	}

	store, err := cache.Open(cachePath)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	key := cache.Key(source)

	bc, err := store.CompileOnce(key, func() (*compiler.Bytecode, error) {
		_, bc, err := compileFile(filename)
		return bc, err
	})
	return source, bc, err
}

func defaultCachePath() string {
	if dir := os.Getenv("SENTRA_CACHE_DIR"); dir != "" {
		return filepath.Join(dir, "bytecode.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "sentra-cache.db"
	}
	dir := filepath.Join(home, ".cache", "sentra")
	os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "bytecode.db")
}

func printRunError(err error) {
	if sentraErr, ok := err.(*errors.SentraError); ok {
		if os.Getenv("SENTRA_DEBUG") == "1" {
			fmt.Fprintf(os.Stderr, "%+v\n", sentraErr)
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", sentraErr.Error())
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func printStats(source []byte, bc *compiler.Bytecode, elapsed time.Duration) {
	fmt.Println("--- sentra run --stats ---")
	fmt.Printf("source size:       %s\n", humanize.Bytes(uint64(len(source))))
	fmt.Printf("instruction bytes: %s\n", humanize.Bytes(uint64(len(bc.Instructions))))
	fmt.Printf("constant pool:     %s entries\n", humanize.Comma(int64(len(bc.Constants))))
	fmt.Printf("wall time:         %s\n", elapsed)
}

func dumpCommand(args []string) {
	var filename string
	var prettyPrint, emitLLVM bool

	for _, a := range args {
		switch a {
		case "--pretty":
			prettyPrint = true
		case "--emit-llvm":
			emitLLVM = true
		default:
			filename = a
		}
	}
	if filename == "" {
		log.Fatal("sentra dump: no file given")
	}

	_, bc, err := compileFile(filename)
	if err != nil {
		printRunError(err)
		os.Exit(1)
	}

	if emitLLVM {
		fmt.Println(irdump.Dump(bc))
		return
	}

	if prettyPrint {
		fmt.Printf("%# v\n", pretty.Formatter(bc.Constants))
		fmt.Println(bc.Instructions.String())
		return
	}

	fmt.Println(bc.Instructions.String())
}
