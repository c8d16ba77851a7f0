package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/peterh/liner"

	"github.com/go-memprobe/memprobe/pkg/config"
	"github.com/go-memprobe/memprobe/pkg/pathexpr"
	"github.com/go-memprobe/memprobe/pkg/proc"
	"github.com/go-memprobe/memprobe/pkg/search"
)

const historyFile string = ".memprobe_history"

// Term represents the terminal running memprobe.
type Term struct {
	mem    proc.MemoryAccess
	sess   *search.Session
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	dumb   bool
	stdout io.Writer

	// lastPath is the result of the most recent path command, kept for the
	// vars command.
	lastPath *pathexpr.ExecutionResult
}

// New returns a new Term attached to the given process.
func New(mem proc.MemoryAccess, conf *config.Config) *Term {
	cmds := ProbeCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	sess := search.NewSession(mem)

	t := &Term{
		mem:    mem,
		sess:   sess,
		conf:   conf,
		prompt: "(memprobe) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: w,
	}
	sess.SetCompletionFunc(func(st search.Status, code int) {
		if st == search.StatusError {
			fmt.Fprintf(t.stdout, "pass finished: %s (engine code %d)\n", st, code)
			return
		}
		fmt.Fprintf(t.stdout, "pass finished: %s, %d matches\n", st, sess.MatchCount())
	})
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// sigintGuard cancels the running scan pass on SIGINT instead of killing
// the terminal.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		fmt.Println("received SIGINT, cancelling running pass (will not forward signal)")
		t.sess.Cancel()
	}
}

// Run begins running memprobe in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go t.sigintGuard(ch)

	completions := trie.New()
	for _, cmd := range t.cmds.cmds {
		for _, alias := range cmd.aliases {
			completions.Add(alias, nil)
		}
	}
	t.line.SetCompleter(func(line string) []string {
		return completions.PrefixSearch(strings.ToLower(line))
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	t.line.ReadHistory(f)
	f.Close()
	fmt.Println("Type 'help' for list of commands.")

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	t.sess.Cancel()
	return 0, nil
}
