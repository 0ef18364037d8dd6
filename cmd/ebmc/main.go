// Package main provides the entry point for the EBM compiler back-end:
// load the parser's AST JSON, convert it to EBM, run the transform
// pipeline, and write the binary module (and/or its JSON dump).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/orizon-lang/ebmc/internal/cli"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/ebm/conv"
	"github.com/orizon-lang/ebmc/internal/ebm/modver"
	"github.com/orizon-lang/ebmc/internal/ebm/serialize"
	"github.com/orizon-lang/ebmc/internal/ebm/transform"
	"github.com/orizon-lang/ebmc/internal/ebm/watch"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

const progName = "ebmc"

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		jsonOutput  = flag.Bool("json", false, "output version in JSON format")
		inputFile   = flag.String("input", "", "input AST JSON file")
		outputFile  = flag.String("output", "", "output EBM binary file")
		dumpCode    = flag.Bool("dump-code", false, "print the module's JSON form to stdout")
		timing      = flag.Bool("timing", false, "print per-pass wall-clock timings")
		debugUnimpl = flag.Bool("debug-unimplemented", false, "list unimplemented AST constructs instead of failing")
		showFlags   = flag.Bool("show-flags", false, "print the flag list and exit")
		watchMode   = flag.Bool("watch", false, "re-run the pipeline whenever the input file changes")
		modVersions = flag.String("module-versions", "", "comma-separated path@version pairs for imported modules")
	)

	flag.Parse()

	if *showVersion {
		cli.PrintVersion("EBM Compiler", *jsonOutput)

		return
	}

	if *showFlags {
		flag.Usage()

		return
	}

	if *inputFile == "" {
		fail(fmt.Errorf("no input file specified (-input)"))
	}

	versions := parseModuleVersions(*modVersions)

	if err := runOnce(*inputFile, *outputFile, versions, *dumpCode, *timing, *debugUnimpl); err != nil {
		fail(err)
	}

	if *watchMode {
		if err := watchLoop(*inputFile, *outputFile, versions, *dumpCode, *timing, *debugUnimpl); err != nil {
			fail(err)
		}
	}
}

// parseModuleVersions splits "path@version,path@version" into the map
// modver.CheckImports consumes.
func parseModuleVersions(spec string) map[string]string {
	out := make(map[string]string)

	for _, pair := range strings.Split(spec, ",") {
		path, version, ok := strings.Cut(pair, "@")
		if ok {
			out[path] = version
		}
	}

	return out
}

// fail prints "<program-name>: <message>" to stderr and exits 1.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
	os.Exit(1)
}

func runOnce(inputFile, outputFile string, versions map[string]string, dumpCode, timing, debugUnimpl bool) error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}

	start := time.Now()

	prog, err := srcast.LoadProgram(data)
	if err != nil {
		return err
	}

	logPass(timing, "load", &start)

	mod, err := conv.ConvertProgram(prog)
	if err != nil {
		if debugUnimpl && isUnsupported(err) {
			log.Printf("unimplemented: %v", err)

			return nil
		}

		return err
	}

	logPass(timing, "convert", &start)

	if err := modver.CheckImports(mod, versions); err != nil {
		return err
	}

	if err := transform.Run(mod); err != nil {
		return err
	}

	logPass(timing, "transform", &start)

	if outputFile != "" {
		bin, err := serialize.Encode(mod)
		if err != nil {
			return err
		}

		if err := os.WriteFile(outputFile, bin, 0o644); err != nil {
			return err
		}

		logPass(timing, "serialize", &start)
	}

	if dumpCode {
		if err := dumpJSON(mod); err != nil {
			return err
		}
	}

	return nil
}

func dumpJSON(mod *arena.Module) error {
	out, err := serialize.ToJSON(mod)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(append(out, '\n'))

	return err
}

func isUnsupported(err error) bool {
	se, ok := err.(*errors.StandardError)

	return ok && se.Category == errors.CategoryUnsupported
}

func logPass(timing bool, name string, start *time.Time) {
	if timing {
		log.Printf("%s: %v", name, time.Since(*start))
	}

	*start = time.Now()
}

// watchLoop re-runs the pipeline on every write to the input file until
// interrupted.
func watchLoop(inputFile, outputFile string, versions map[string]string, dumpCode, timing, debugUnimpl bool) error {
	w, err := watch.New()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(inputFile); err != nil {
		return err
	}

	log.Printf("watching %s", inputFile)

	for {
		select {
		case ev := <-w.Events():
			if ev.Op&(watch.OpWrite|watch.OpCreate) == 0 {
				continue
			}

			log.Printf("%s changed; re-running", ev.Path)

			if err := runOnce(inputFile, outputFile, versions, dumpCode, timing, debugUnimpl); err != nil {
				// Keep watching: an intermediate save state often fails to
				// parse and the next write fixes it.
				log.Printf("pipeline: %v", err)
			}
		case err := <-w.Errors():
			return err
		}
	}
}
