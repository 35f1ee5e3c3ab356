package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/urfave/cli/v2"

	"github.com/monsterxx03/godump/pkg/api"
	gbin "github.com/monsterxx03/godump/pkg/binary"
	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/minidump"
	"github.com/monsterxx03/godump/pkg/report"
	"github.com/monsterxx03/godump/pkg/termui"
)

var (
	gitVer  string
	buildAt string
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "yaml options file",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
		Value: "info",
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "output file or directory",
	}
	compressFlag = &cli.BoolFlag{
		Name:  "compress",
		Usage: "zstd compress the document",
	}
	maxStackFlag = &cli.Uint64Flag{
		Name:  "max-stack-bytes",
		Usage: "stack bytes captured per thread",
		Value: minidump.DefaultMaxStackBytes,
	}
	maxRescansFlag = &cli.IntFlag{
		Name:  "max-rescans",
		Usage: "thread list rescans while suspending",
		Value: minidump.DefaultMaxRescans,
	}
	skipStreamFlag = &cli.StringSliceFlag{
		Name:  "skip-stream",
		Usage: "optional stream to leave out, e.g. linux_environ",
	}
)

func crashFromFlags(c *cli.Context) (*minidump.CrashContext, error) {
	if !c.IsSet("signal") {
		return nil, nil
	}
	crash := &minidump.CrashContext{Signal: uint32(c.Uint("signal")), Tid: c.Int("pid")}
	if c.IsSet("tid") {
		crash.Tid = c.Int("tid")
	}
	if c.IsSet("fault-addr") {
		addr, err := cast.ToUint64E(c.String("fault-addr"))
		if err != nil {
			return nil, fmt.Errorf("invalid fault address %q: %w", c.String("fault-addr"), err)
		}
		crash.Address = addr
	}
	return crash, nil
}

func logWarnings(ws dumperr.Warnings) {
	for _, w := range ws {
		fields := log.Fields{"kind": w.Kind.String()}
		if w.Stream != "" {
			fields["stream"] = w.Stream
		}
		if w.Tid != 0 {
			fields["tid"] = w.Tid
		}
		if w.Addr != 0 {
			fields["addr"] = fmt.Sprintf("%#x", w.Addr)
		}
		log.WithFields(fields).Warn(w.Err)
	}
}

func dump(c *cli.Context) error {
	cfg, err := fromContext(c)
	if err != nil {
		return err
	}
	crash, cerr := crashFromFlags(c)
	if cerr != nil {
		return cerr
	}
	pid := c.Int("pid")
	cfg.Logger = log.WithField("pid", pid)

	path := report.OutputPath(cfg.Out, cfg.Compress)
	w, err := report.Create(path, cfg.Compress)
	if err != nil {
		return err
	}
	res, derr := minidump.Dump(c.Context, pid, crash, cfg.Options, w)
	if werr := w.Close(); derr == nil {
		derr = werr
	}
	if derr != nil {
		os.Remove(path)
		return derr
	}
	logWarnings(res.Warnings)
	log.WithFields(log.Fields{
		"path":     path,
		"size":     report.HumanateBytes(uint64(len(res.Bytes))),
		"streams":  len(res.Directory),
		"warnings": len(res.Warnings),
	}).Info("minidump written")
	fmt.Println(path)
	return nil
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator("")
	table.SetHeader(header)
	return table
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

func info(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: godump info FILE")
	}
	f, err := report.Load(c.Args().First())
	if err != nil {
		return err
	}
	s := report.Summarize(f)

	fmt.Printf("dumped at %s, %s, %d streams\n", s.Timestamp.Format("2006-01-02 15:04:05"), report.HumanateBytes(uint64(s.Size)), len(s.Streams))
	if s.System != nil {
		fmt.Printf("system: %s x%d %s %s\n", s.System.Arch, s.System.Processors, s.System.Vendor, s.System.CSDVersion)
	}
	if p := s.Process; p != nil {
		fmt.Printf("process: pid %d", p.PID)
		if p.Age != "" {
			fmt.Printf(", uptime %s, user %ds, kernel %ds", p.Age, p.User, p.Kernel)
		}
		fmt.Println()
	}
	if e := s.Exception; e != nil {
		fmt.Printf("exception: %s code %d addr %#x thread %d\n", e.Signal, e.Code, e.Address, e.ThreadID)
	}

	fmt.Print("\nstreams:\n\n")
	table := newTable("type", "id", "rva", "size")
	for _, d := range s.Streams {
		table.Append([]string{d.Type, hex(uint64(d.ID)), hex(uint64(d.RVA)), report.HumanateBytes(uint64(d.Size))})
	}
	table.Render()

	fmt.Print("\nthreads:\n\n")
	table = newTable("tid", "name", "ip", "sp", "stack")
	for _, th := range s.Threads {
		row := []string{fmt.Sprint(th.ID), th.Name, hex(th.IP), hex(th.SP), report.HumanateBytes(uint64(th.StackSize))}
		if s.Exception != nil && s.Exception.ThreadID == th.ID {
			table.Rich(row, []tablewriter.Colors{{tablewriter.FgRedColor}, {}, {}, {}, {}})
			continue
		}
		table.Append(row)
	}
	table.Render()

	fmt.Print("\nmodules:\n\n")
	table = newTable("base", "size", "build id", "name")
	for _, m := range s.Modules {
		table.Append([]string{hex(m.Base), report.HumanateBytes(uint64(m.Size)), m.BuildID, m.Name})
	}
	table.Render()

	fmt.Print("\nmemory:\n\n")
	table = newTable("start", "size")
	for _, m := range s.Memory {
		table.Append([]string{hex(m.Start), report.HumanateBytes(uint64(m.Size))})
	}
	table.Render()

	if len(s.Problems) > 0 {
		fmt.Printf("\nproblems:\n  %s\n", strings.Join(s.Problems, "\n  "))
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "godump",
		Usage: "write breakpad minidumps of running linux processes",
		Commands: []*cli.Command{
			{
				Name:    "dump",
				Aliases: []string{"d"},
				Usage:   "suspend a process and write a minidump of it",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "pid", Usage: "target process id", Required: true},
					outFlag, compressFlag, configFlag, logLevelFlag,
					maxStackFlag, maxRescansFlag, skipStreamFlag,
					&cli.UintFlag{Name: "signal", Usage: "signal number to record as the exception"},
					&cli.StringFlag{Name: "fault-addr", Usage: "faulting address, decimal or 0x hex"},
					&cli.IntFlag{Name: "tid", Usage: "thread the signal was delivered to, defaults to pid"},
				},
				Action: dump,
			},
			{
				Name:      "info",
				Aliases:   []string{"i"},
				Usage:     "print the contents of a minidump",
				ArgsUsage: "FILE",
				Action:    info,
			},
			{
				Name:      "view",
				Usage:     "browse a minidump in the terminal",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("usage: godump view FILE")
					}
					f, err := report.Load(c.Args().First())
					if err != nil {
						return err
					}
					return termui.NewViewer(c.Args().First(), report.Summarize(f)).Run()
				},
			},
			{
				Name:  "mcp",
				Usage: "serve write_minidump and inspect_minidump as MCP tools",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "serve over sse on this port instead of stdio"},
					outFlag, configFlag, logLevelFlag, maxStackFlag, maxRescansFlag, skipStreamFlag,
				},
				Action: func(c *cli.Context) error {
					cfg, err := fromContext(c)
					if err != nil {
						return err
					}
					if cfg.Resolver, err = gbin.NewResolver(256); err != nil {
						return err
					}
					cfg.Logger = log.StandardLogger()
					return api.NewServer(c.Int("port"), cfg.Out, gitVer, cfg.Options, log.StandardLogger()).Start()
				},
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "print build version",
				Action: func(c *cli.Context) error {
					println("Git: " + gitVer)
					println("Build at: " + buildAt)
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}
