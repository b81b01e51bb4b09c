// Command tmlc is the thin CLI entry point binding the driver package to
// os.Args and stdio, the way the teacher's cmd/vslc/main.go binds
// util.ParseArgs to the rest of src/.
package main

import (
	"fmt"
	"os"
	"strings"

	"tml/internal/diag"
	"tml/internal/driver"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opt, err := driver.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tmlc:", err)
		return 1
	}
	if opt.Help {
		fmt.Print(driver.Usage())
		return 0
	}
	if opt.Version {
		fmt.Println(driver.Version())
		return 0
	}

	d := driver.New()
	renderer := diag.NewTextRenderer(os.Stderr, d.Files)

	switch opt.Cmd {
	case driver.CmdLex:
		res, err := d.Lex(opt)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tmlc:", err)
			return 1
		}
		renderer.RenderAll(res.Bag)
		if res.Bag.HasErrors() {
			return 1
		}
		for _, tok := range res.Tokens {
			if opt.Verbose {
				fmt.Printf("%-20s %-15q %s\n", tok.Kind, tok.Lexeme, tok.Span)
			} else {
				fmt.Println(tok.Lexeme)
			}
		}
		return 0

	case driver.CmdParse:
		res, err := d.ParseOnly(opt)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tmlc:", err)
			return 1
		}
		renderer.RenderAll(res.Bag)
		if res.Bag.HasErrors() {
			return 1
		}
		fmt.Printf("parsed %d top-level declarations\n", len(res.Module.Decls))
		return 0

	case driver.CmdCheck:
		res, err := d.Check(opt)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tmlc:", err)
			return 1
		}
		renderer.RenderAll(res.Bag)
		if res.Bag.HasErrors() {
			return 1
		}
		return 0

	case driver.CmdBuild:
		res, err := d.Build(opt)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tmlc:", err)
			return 1
		}
		renderer.RenderAll(res.Bag)
		if res.Bag.HasErrors() {
			return 1
		}
		if opt.EmitIR {
			fmt.Println(res.IR)
		}
		return 0

	case driver.CmdRun:
		res, err := d.Run(opt)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tmlc:", err)
			return 1
		}
		renderer.RenderAll(res.Bag)
		if res.Bag.HasErrors() {
			return 1
		}
		if err := os.WriteFile(res.IRPath, []byte(res.IR), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "tmlc:", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "tmlc: IR written to %s; execution is handled by the external linker/runner\n", res.IRPath)
		return 0

	case driver.CmdFmt, driver.CmdInit, driver.CmdLint, driver.CmdTest, driver.CmdExplain:
		fmt.Fprintf(os.Stderr, "tmlc: %s is implemented by an external collaborator, not the core\n", strings.ToLower(commandName(opt.Cmd)))
		return 1

	default:
		fmt.Print(driver.Usage())
		return 0
	}
}

func commandName(c driver.Command) string {
	switch c {
	case driver.CmdFmt:
		return "fmt"
	case driver.CmdInit:
		return "init"
	case driver.CmdLint:
		return "lint"
	case driver.CmdTest:
		return "test"
	case driver.CmdExplain:
		return "explain"
	default:
		return "command"
	}
}
