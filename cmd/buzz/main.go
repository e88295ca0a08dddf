// buzz - the Buzz language CLI
//
// Usage:
//
//	buzz <script>                 # compile and run a script
//	buzz <script> --cache out.bzzc  # run, writing a bytecode cache alongside
//	buzz --from-cache cached.bzzc  # skip compilation, run a cached chunk directly
//	buzz test <dir>                # discover scripts under dir and run each one as a script
//
// Exit codes: 0 success, 64 compile error, 65 uncaught runtime exception,
// 70 internal error.
package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buzz-lang/buzz/bytecache"
	"github.com/buzz-lang/buzz/config"
	"github.com/buzz-lang/buzz/vm"
)

const (
	exitOK           = 0
	exitCompileError = 64
	exitRuntimeError = 65
	exitInternal     = 70
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "buzz: internal error: %v\n", r)
			code = exitInternal
		}
	}()

	fs := flag.NewFlagSet("buzz", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose output")
	writeCache := fs.String("cache", "", "write a bytecode cache file for the compiled script")
	fromCache := fs.String("from-cache", "", "run a previously-written bytecode cache file instead of compiling")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  buzz <script>              compile and run\n")
		fmt.Fprintf(os.Stderr, "  buzz test <dir>            discover and run test functions\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitCompileError
	}

	rest := fs.Args()
	if len(rest) == 0 && *fromCache == "" {
		fs.Usage()
		return exitCompileError
	}

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz: config error: %v\n", err)
		return exitInternal
	}
	m := vm.NewVM(cfg.GCConfig())

	if *fromCache != "" {
		return runFromCache(m, *fromCache, *verbose)
	}

	if rest[0] == "test" {
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "buzz test: missing directory")
			return exitCompileError
		}
		return runTests(m, rest[1], *verbose)
	}

	return runScript(m, rest[0], *writeCache, *verbose)
}

// runScript compiles (via vm.Compiler, §6's external seam — the
// shipped VM carries only vm.stubCompiler, so this always surfaces the
// compile-error path unless the embedder has installed a real front
// end) and, on success, interprets the resulting function and reports
// its own exit-code mapping (§7: compile 64, uncaught runtime 65,
// internal 70).
func runScript(m *vm.VM, path, cachePath string, verbose bool) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz: %v\n", err)
		return exitCompileError
	}

	fn, err := m.Compiler.Compile(string(source), filepath.Base(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz: compile error: %v\n", err)
		return exitCompileError
	}

	if cachePath != "" {
		hash := sha256.Sum256(source)
		f, err := os.Create(cachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "buzz: cannot write cache: %v\n", err)
			return exitInternal
		}
		err = bytecache.Save(f, filepath.Base(path), hash, fn.Chunk())
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "buzz: cannot write cache: %v\n", err)
			return exitInternal
		}
	}

	return interpret(m, fn, verbose)
}

// runFromCache bypasses compilation entirely, running a chunk that was
// previously cached with Save (the only path that works without a real
// front end installed, per the documented Compiler seam).
func runFromCache(m *vm.VM, path string, verbose bool) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz: %v\n", err)
		return exitInternal
	}
	defer f.Close()

	loaded, err := bytecache.Load(m, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz: bad cache file: %v\n", err)
		return exitInternal
	}
	fn := m.NewFunction(loaded.ChunkName, vm.FunctionScript, loaded.Chunk, nil)
	return interpret(m, fn, verbose)
}

func interpret(m *vm.VM, fn *vm.FunctionObj, verbose bool) int {
	result, err := vm.Interpret(m, fn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz: uncaught error: %v\n", err)
		return exitRuntimeError
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "buzz: %v\n", result)
	}
	return exitOK
}

// runTests discovers *.buzz files under dir and, for each one that
// compiles, interprets the whole script (§6's `buzz test <dir>`); it
// does not look up or call a `test` function inside the script. A
// compile failure in any discovered file is fatal (64); a script whose
// run ends in an uncaught error is reported as FAIL, the remaining
// scripts still run, and the process then exits 65. Only an internal
// failure (I/O) exits 70.
func runTests(m *vm.VM, dir string, verbose bool) int {
	var scripts []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".buzz") {
			scripts = append(scripts, path)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "buzz test: %v\n", err)
		return exitInternal
	}

	failed := false
	for _, path := range scripts {
		source, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "buzz test: %v\n", err)
			return exitInternal
		}
		fn, err := m.Compiler.Compile(string(source), filepath.Base(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "buzz test: compile error in %s: %v\n", path, err)
			return exitCompileError
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "buzz test: running %s\n", path)
		}
		if _, err := vm.Interpret(m, fn); err != nil {
			fmt.Fprintf(os.Stderr, "buzz test: FAIL %s: %v\n", path, err)
			failed = true
			continue
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "buzz test: PASS %s\n", path)
		}
	}
	if failed {
		return exitRuntimeError
	}
	return exitOK
}
