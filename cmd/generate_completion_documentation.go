//go:build tools
// +build tools

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
	"github.com/ubuntu/sshdconf/cmd/sshdconf/commands"
	"github.com/ubuntu/sshdconf/internal/consts"
	"github.com/ubuntu/sshdconf/internal/generators"
)

const usage = `Usage of %s:

   completion DIRECTORY
     Create completions files in a structured hierarchy in DIRECTORY.
   man DIRECTORY
     Create man pages files in a structured hierarchy in DIRECTORY.
`

func main() {
	if len(os.Args) < 3 {
		log.Fatalf(usage, os.Args[0])
	}

	cmd := commands.New().RootCmd()
	dir := generators.ShareDirectory(os.Args[2])
	switch os.Args[1] {
	case "completion":
		genCompletions(cmd, dir)
	case "man":
		genManPages(cmd, dir)
	default:
		log.Fatalf(usage, os.Args[0])
	}
}

// genCompletions for bash, zsh and fish directories.
func genCompletions(cmd cobra.Command, dir string) {
	bashCompDir := filepath.Join(dir, "bash-completion", "completions")
	zshCompDir := filepath.Join(dir, "zsh", "vendor-completions")
	fishCompDir := filepath.Join(dir, "fish", "vendor_completions.d")
	for _, d := range []string{bashCompDir, zshCompDir, fishCompDir} {
		if err := generators.CleanDirectory(d); err != nil {
			log.Fatalln(err)
		}
	}

	if err := cmd.GenBashCompletionFileV2(filepath.Join(bashCompDir, cmd.Name()), true); err != nil {
		log.Fatalf("Couldn't create bash completion for %s: %v", cmd.Name(), err)
	}
	if err := cmd.GenZshCompletionFile(filepath.Join(zshCompDir, "_"+cmd.Name())); err != nil {
		log.Fatalf("Couldn't create zsh completion for %s: %v", cmd.Name(), err)
	}
	if err := cmd.GenFishCompletionFile(filepath.Join(fishCompDir, cmd.Name()+".fish"), true); err != nil {
		log.Fatalf("Couldn't create fish completion for %s: %v", cmd.Name(), err)
	}
}

func genManPages(cmd cobra.Command, dir string) {
	out := filepath.Join(dir, "man", "man8")
	if err := generators.CleanDirectory(out); err != nil {
		log.Fatalln(err)
	}

	// Run ExecuteC to install completion and help commands
	cmd.SetArgs([]string{"--help"})
	_, _ = cmd.ExecuteC()

	header := &doc.GenManHeader{
		Title:   strings.ToUpper(cmd.Name()),
		Section: "8",
		Source:  fmt.Sprintf("%s %s", cmd.Name(), consts.Version),
	}
	if err := doc.GenManTree(&cmd, header, out); err != nil {
		log.Fatalf("Couldn't generate man pages for %s: %v", cmd.Name(), err)
	}
}
