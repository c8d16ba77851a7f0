// Package cmds implements the command line interface of memprobe.
package cmds

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-memprobe/memprobe/pkg/config"
	"github.com/go-memprobe/memprobe/pkg/logflags"
	"github.com/go-memprobe/memprobe/pkg/proc"
	"github.com/go-memprobe/memprobe/pkg/terminal"
	"github.com/go-memprobe/memprobe/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const memprobeCommandLongDesc = `Memprobe inspects the memory of a running process.

It walks pointer chains through the target's address space with a small
step language, and narrows down interesting addresses with progressive
value scans, the way a memory editor does.

All access is read-only; the target process is never stopped or modified.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main memprobe root command.
	rootCommand = &cobra.Command{
		Use:   "memprobe",
		Short: "Memprobe is a process memory inspector.",
		Long:  memprobeCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (proc, search, pathexpr, terminal).")

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running process and start the interactive terminal.",
		Long: `Attach to a running process and start the interactive terminal.

Reading another process requires the same privileges ptrace would: run as
the same user with ptrace_scope relaxed, or as root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid: %s", args[0])
			}
			os.Exit(execute(pid))
			return nil
		},
	}
	rootCommand.AddCommand(attachCommand)

	// 'regions' subcommand.
	regionsCommand := &cobra.Command{
		Use:   "regions <pid>",
		Short: "Print the memory regions of a process and exit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid: %s", args[0])
			}
			return printRegions(pid)
		},
	}
	rootCommand.AddCommand(regionsCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Memprobe Memory Inspector\n%s\n", version.MemprobeVersion)
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func execute(pid int) int {
	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	p, err := proc.Attach(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not attach to pid %d: %v\n", pid, err)
		return 1
	}
	defer p.Close()

	term := terminal.New(p, conf)
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}

func printRegions(pid int) error {
	p, err := proc.Attach(pid)
	if err != nil {
		return fmt.Errorf("could not attach to pid %d: %v", pid, err)
	}
	defer p.Close()

	regions, err := p.MemoryRegions()
	if err != nil {
		return err
	}
	w := new(tabwriter.Writer)
	w.Init(os.Stdout, 4, 4, 2, ' ', 0)
	for _, r := range regions {
		fmt.Fprintf(w, "0x%x-0x%x\t%s\t%d\t%s\n", r.Start, r.End, r.Perms, r.Size(), r.Path)
	}
	return w.Flush()
}
