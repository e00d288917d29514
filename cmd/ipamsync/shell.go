package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

// =============================================================================
// Interactive Shell
// =============================================================================

// runShell reads commands until exit, quit or Ctrl-D.
func runShell(c *cli, cfgPath string) {
	// go-prompt leaves the terminal in raw mode on some platforms.
	if state, err := term.GetState(int(os.Stdin.Fd())); err == nil {
		defer term.Restore(int(os.Stdin.Fd()), state)
	}

	fmt.Fprintf(c.out, "ipamsync %s (config %s, %d groups)\n", Version, cfgPath, len(c.cfg.Groups))
	fmt.Fprintln(c.out, `type "help" for commands, "exit" to leave`)

	sh := &shell{cli: c}
	p := prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("ipamsync> "),
		prompt.OptionTitle("ipamsync"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	)
	p.Run()
}

type shell struct {
	cli *cli
}

func isExit(in string) bool {
	switch strings.TrimSpace(in) {
	case "exit", "quit":
		return true
	}
	return false
}

func (s *shell) execute(in string) {
	args := strings.Fields(in)
	if len(args) == 0 || isExit(in) {
		return
	}
	if err := s.cli.exec(context.Background(), args); err != nil {
		fmt.Fprintf(s.cli.out, "error: %v\n", err)
	}
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	words := strings.Fields(before)
	word := d.GetWordBeforeCursor()

	// Still typing the command name.
	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(before, " ")) {
		return prompt.FilterHasPrefix(s.commandSuggestions(), word, true)
	}

	// Only the first argument is completed.
	argIndex := len(words) - 1
	if strings.HasSuffix(before, " ") {
		argIndex = len(words)
	}
	if argIndex != 1 {
		return nil
	}

	switch words[0] {
	case "run", "runs":
		return prompt.FilterHasPrefix(s.groupSuggestions(), word, true)
	case "results", "export":
		return prompt.FilterHasPrefix(s.runSuggestions(), word, false)
	}
	return nil
}

func (s *shell) commandSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(commands)+2)
	for _, cmd := range commands {
		out = append(out, prompt.Suggest{Text: cmd.name, Description: cmd.help})
	}
	out = append(out,
		prompt.Suggest{Text: "help", Description: "show commands"},
		prompt.Suggest{Text: "exit", Description: "leave the shell"},
	)
	return out
}

func (s *shell) groupSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(s.cli.cfg.Groups))
	for _, g := range s.cli.cfg.Groups {
		out = append(out, prompt.Suggest{
			Text:        g.Name,
			Description: fmt.Sprintf("%d data sources", len(g.DataSources)),
		})
	}
	return out
}

func (s *shell) runSuggestions() []prompt.Suggest {
	runs, err := s.cli.store.ListRuns(context.Background(), "", defaultRunsLimit)
	if err != nil {
		return nil
	}
	out := make([]prompt.Suggest, 0, len(runs))
	for _, r := range runs {
		out = append(out, prompt.Suggest{
			Text:        strconv.FormatInt(r.ID, 10),
			Description: fmt.Sprintf("%s %s", r.Group, formatSummary(r.Summary)),
		})
	}
	return out
}
