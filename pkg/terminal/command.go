// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/go-memprobe/memprobe/pkg/config"
	"github.com/go-memprobe/memprobe/pkg/disasm"
	"github.com/go-memprobe/memprobe/pkg/memtypes"
	"github.com/go-memprobe/memprobe/pkg/pathexpr"
	"github.com/go-memprobe/memprobe/pkg/proc"
	"github.com/go-memprobe/memprobe/pkg/search"
)

const (
	defaultMaxResultsDisplay = 32
	defaultMaxTraceDisplay   = 64
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the memprobe terminal.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// ProbeCommands returns a Commands struct with default commands defined.
func ProbeCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"regions", "maps"}, cmdFn: regionsCommand, helpMsg: `Print the readable memory regions of the target process.

	regions [-w]

With -w only writable regions are listed.`},
		{aliases: []string{"scan"}, cmdFn: scanCommand, helpMsg: `Start an initial scan recording every value in the writable regions.

	scan <type>

Type is one of u8, u16, u32, u64, i8, i16, i32, i64. The scan runs in the
background; use "wait" to follow its progress or "status" to sample it.`},
		{aliases: []string{"refine", "next"}, cmdFn: refineCommand, helpMsg: `Narrow the current match set with a comparison against the previous pass.

	refine <condition> [param] [param2]

Conditions taking no parameter: changed, unchanged, increased, decreased.
Conditions taking one parameter: increased-by, decreased-by,
increased-by-percent, decreased-by-percent.
Conditions taking two parameters: increased-by-range, decreased-by-range.`},
		{aliases: []string{"wait", "w"}, cmdFn: waitCommand, helpMsg: `Follow the running pass, printing progress until it ends.

	wait

Press Ctrl-C to cancel the pass.`},
		{aliases: []string{"cancel"}, cmdFn: cancelCommand, helpMsg: "Cancel the running scan pass."},
		{aliases: []string{"status", "st"}, cmdFn: statusCommand, helpMsg: "Print the state and progress of the current scan pass."},
		{aliases: []string{"results", "res"}, cmdFn: resultsCommand, helpMsg: `Print matches of the last completed pass.

	results [start [count]]`},
		{aliases: []string{"path", "p"}, cmdFn: pathCommand, helpMsg: `Walk a pointer path starting from a base address.

	path <addr> <step> [<step> ...]

Steps:
	+N -N           move the cursor by N bytes
	*type[:count]   dereference count times, reading values of type
	[idx[:size]]    array element access, idx is a number, $name or .
	name=( ... )    evaluate the group, bind the landing address to name
	->name          jump to a bound variable
	skip            no-op
	null            reset the cursor to zero
	stop            end the walk at the current address

The full trace of the walk is printed, followed by the final address and
the value at that address decoded as every scalar type.`},
		{aliases: []string{"vars"}, cmdFn: varsCommand, helpMsg: `Print the variables bound by the last path command.

	vars`},
		{aliases: []string{"disasm", "disassemble"}, cmdFn: disasmCommand, helpMsg: `Disassemble target memory.

	disasm <arch> <addr> [count]

Arch is arm64 or amd64. Count defaults to 16 instructions.`},
		{aliases: []string{"config"}, cmdFn: configCommand, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>

Defines <alias> as an alias of <command>.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the terminal."},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			v.cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	// If <enter> use last command, if there was one.
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var noCmdError = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return noCmdError
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func regionsCommand(t *Term, args string) error {
	writableOnly := args == "-w"
	regions, err := t.mem.MemoryRegions()
	if err != nil {
		return err
	}

	w := new(tabwriter.Writer)
	w.Init(t.stdout, 4, 4, 2, ' ', 0)
	for _, r := range regions {
		if !r.Readable() {
			continue
		}
		if writableOnly && !r.Writable() {
			continue
		}
		fmt.Fprintf(w, "0x%x-0x%x\t%s\t%d\t%s\n", r.Start, r.End, r.Perms, r.Size(), r.Path)
	}
	return w.Flush()
}

func scanCommand(t *Term, args string) error {
	dt, ok := memtypes.FromCode(args)
	if !ok {
		return fmt.Errorf("unknown data type %q", args)
	}

	regions, err := t.mem.MemoryRegions()
	if err != nil {
		return err
	}
	var ranges []proc.MemRange
	for _, r := range regions {
		if r.Readable() && r.Writable() {
			ranges = append(ranges, proc.MemRange{Start: r.Start, End: r.End})
		}
	}

	if t.conf.ScanChunkSize != nil {
		t.sess.ChunkSize = *t.conf.ScanChunkSize
	}
	if err := t.sess.StartInitial(dt, ranges); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "scanning %d regions for %s values\n", len(ranges), dt)
	return waitCommand(t, "")
}

func refineCommand(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return errors.New("refine requires a condition")
	}
	cond, ok := search.ConditionByName(fields[0])
	if !ok {
		return fmt.Errorf("unknown condition %q", fields[0])
	}

	var p1, p2 int64
	var err error
	params := fields[1:]
	want := 0
	if cond.NeedsParam() {
		want = 1
	} else if cond.NeedsTwoParams() {
		want = 2
	}
	if len(params) != want {
		return fmt.Errorf("condition %s takes %d parameter(s), got %d", cond, want, len(params))
	}
	if want >= 1 {
		if p1, err = strconv.ParseInt(params[0], 0, 64); err != nil {
			return fmt.Errorf("bad parameter %q", params[0])
		}
	}
	if want >= 2 {
		if p2, err = strconv.ParseInt(params[1], 0, 64); err != nil {
			return fmt.Errorf("bad parameter %q", params[1])
		}
	}

	if err := t.sess.StartRefine(cond, p1, p2); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "refining %d matches with %s\n", t.sess.MatchCount(), cond)
	return waitCommand(t, "")
}

func waitCommand(t *Term, args string) error {
	st := t.sess.Poll(context.Background(), func(p search.ProgressSnapshot, st search.Status) {
		if st == search.StatusRunning {
			fmt.Fprintf(t.stdout, "\r%3.0f%%  %d matches", p.Fraction*100, p.Matches)
		}
	})
	fmt.Fprintf(t.stdout, "\r%s, %d matches        \n", st, t.sess.MatchCount())
	if st == search.StatusError {
		return &search.EngineError{Code: t.sess.ErrorCode()}
	}
	return nil
}

func cancelCommand(t *Term, args string) error {
	t.sess.Cancel()
	return nil
}

func statusCommand(t *Term, args string) error {
	st := t.sess.Status()
	p := t.sess.Progress()
	fmt.Fprintf(t.stdout, "status: %s\n", st)
	if st == search.StatusRunning {
		fmt.Fprintf(t.stdout, "progress: %.1f%% (%d regions, %d addresses)\n", p.Fraction*100, p.RegionsScanned, p.AddressesScanned)
	}
	if st == search.StatusError {
		fmt.Fprintf(t.stdout, "engine error code: %d\n", t.sess.ErrorCode())
	}
	fmt.Fprintf(t.stdout, "matches: %d\n", t.sess.MatchCount())
	return nil
}

func resultsCommand(t *Term, args string) error {
	start := 0
	count := defaultMaxResultsDisplay
	if t.conf.MaxResultsDisplay != nil {
		count = *t.conf.MaxResultsDisplay
	}

	fields := strings.Fields(args)
	var err error
	if len(fields) >= 1 {
		if start, err = strconv.Atoi(fields[0]); err != nil {
			return fmt.Errorf("bad start index %q", fields[0])
		}
	}
	if len(fields) >= 2 {
		if count, err = strconv.Atoi(fields[1]); err != nil {
			return fmt.Errorf("bad count %q", fields[1])
		}
	}

	total := t.sess.MatchCount()
	dt := t.sess.DataType()
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 4, 4, 2, ' ', 0)
	for _, res := range t.sess.Results(start, count) {
		fmt.Fprintf(w, "0x%x\t%s\n", res.Address, dt.Format(res.Int()))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	remaining := total - start
	if remaining < 0 {
		remaining = 0
	}
	fmt.Fprintf(t.stdout, "showing %d of %d matches\n", min(count, remaining), total)
	return nil
}

func pathCommand(t *Term, args string) error {
	words, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return err
	}
	if len(words) == 0 || len(words[0]) < 2 {
		return errors.New("path requires a base address and at least one step")
	}
	tokens := words[0]

	base, err := strconv.ParseUint(tokens[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad base address %q", tokens[0])
	}
	nodes, err := pathexpr.ParsePath(tokens[1:])
	if err != nil {
		return err
	}

	res := pathexpr.NewExecutor(t.mem).Execute(context.Background(), base, nodes)
	t.lastPath = &res

	maxTrace := defaultMaxTraceDisplay
	if t.conf.MaxTraceDisplay != nil {
		maxTrace = *t.conf.MaxTraceDisplay
	}
	for i, step := range res.Trace {
		if i >= maxTrace {
			fmt.Fprintf(t.stdout, "... %d more steps\n", len(res.Trace)-i)
			break
		}
		fmt.Fprintf(t.stdout, "%3d  %-24s 0x%-12x -> 0x%x\n", step.Index, step.Label, step.Before, step.After)
	}

	if !res.Success {
		fmt.Fprintf(t.stdout, "walk failed at 0x%x: %s\n", res.Address, res.Err)
		return nil
	}
	fmt.Fprintf(t.stdout, "final address: 0x%x\n", res.Address)
	for _, dt := range memtypes.All {
		if v, ok := res.MemoryValues[dt.Code()]; ok {
			fmt.Fprintf(t.stdout, "  as %-4s %s\n", dt.Code(), v)
		}
	}
	return nil
}

func varsCommand(t *Term, args string) error {
	if t.lastPath == nil || len(t.lastPath.Trace) == 0 {
		return errors.New("no pointer path has been run")
	}
	final := t.lastPath.Trace[len(t.lastPath.Trace)-1].Vars
	if len(final) == 0 {
		fmt.Fprintln(t.stdout, "no variables bound")
		return nil
	}
	names := make([]string, 0, len(final))
	for name := range final {
		names = append(names, name)
	}
	sort.Strings(names)
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t0x%x\n", name, uint64(final[name]))
	}
	return w.Flush()
}

func disasmCommand(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return errors.New("disasm requires an architecture and an address")
	}

	var arch disasm.Arch
	switch fields[0] {
	case "arm64":
		arch = disasm.ARM64
	case "amd64", "x86-64":
		arch = disasm.AMD64
	default:
		code, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("unknown architecture %q", fields[0])
		}
		if arch, err = disasm.ArchFromCode(code); err != nil {
			return err
		}
	}

	addr, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q", fields[1])
	}
	count := 16
	if len(fields) >= 3 {
		if count, err = strconv.Atoi(fields[2]); err != nil || count < 1 {
			return fmt.Errorf("bad instruction count %q", fields[2])
		}
	}

	// x86 instructions are at most 15 bytes; over-read and let the decoder
	// stop at count.
	buf := make([]byte, count*16)
	n, err := t.mem.ReadMemory(buf, addr)
	if err != nil {
		return err
	}
	insts, err := disasm.DisassembleWithPseudo(arch, buf[:n], addr, count)
	if err != nil {
		return err
	}

	w := new(tabwriter.Writer)
	w.Init(t.stdout, 4, 4, 2, ' ', 0)
	for _, inst := range insts {
		fmt.Fprintf(w, "0x%x\t%x\t%s\t; %s\n", inst.Address, inst.Bytes, inst.Text(), inst.Pseudo)
	}
	return w.Flush()
}

func configCommand(t *Term, args string) error {
	switch args {
	case "-list", "":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	}

	v := config.SplitQuotedFields(args, '\'')
	if len(v) < 2 {
		return errors.New("wrong number of arguments to \"config\"")
	}

	if v[0] == "alias" {
		if len(v) < 3 {
			return errors.New("wrong number of arguments to \"config alias\"")
		}
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[v[1]] = append(t.conf.Aliases[v[1]], v[2])
		t.cmds.Merge(t.conf.Aliases)
		return config.SaveConfig(t.conf)
	}

	n, err := strconv.Atoi(v[1])
	if err != nil || n < 1 {
		return fmt.Errorf("invalid value %q for %q", v[1], v[0])
	}
	switch v[0] {
	case "scan-chunk-size":
		t.conf.ScanChunkSize = &n
	case "max-results-display":
		t.conf.MaxResultsDisplay = &n
	case "max-trace-display":
		t.conf.MaxTraceDisplay = &n
	default:
		return fmt.Errorf("unknown configuration parameter %q", v[0])
	}
	return config.SaveConfig(t.conf)
}

func configureList(t *Term) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "scan-chunk-size\t%s\n", intSetting(t.conf.ScanChunkSize))
	fmt.Fprintf(w, "max-results-display\t%s\n", intSetting(t.conf.MaxResultsDisplay))
	fmt.Fprintf(w, "max-trace-display\t%s\n", intSetting(t.conf.MaxTraceDisplay))
	var buf bytes.Buffer
	for cmd, aliases := range t.conf.Aliases {
		fmt.Fprintf(&buf, "aliases\t%s -> %s\n", cmd, strings.Join(aliases, ", "))
	}
	w.Write(buf.Bytes())
	return w.Flush()
}

func intSetting(p *int) string {
	if p == nil {
		return "<not defined>"
	}
	return strconv.Itoa(*p)
}

// ExitRequestError is returned when the user
// exits the terminal.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
