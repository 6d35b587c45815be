// Command wdbg is a CLI front end for the game's debug protocol, one
// subcommand per client operation, built on urfave/cli.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wdbg/client"
	"wdbg/internal/clicolor"
	"wdbg/internal/logtail"
	"wdbg/message"
	"wdbg/packet"
)

func main() {
	app := cli.NewApp()
	app.Name = "wdbg"
	app.Usage = "talk to a running game's debug network interface"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "ip", Value: "127.0.0.1", Usage: "address the game is listening on"},
		cli.StringFlag{Name: "target", Value: "game", Usage: "which debug port to use: game or editor"},
		cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "connect and response timeout"},
		cli.StringFlag{Name: "log-level", Value: "output", Usage: "quiet, output, or all"},
		cli.BoolFlag{Name: "no-delay", Usage: "skip the pacing delay between printed exec output lines"},
		cli.BoolFlag{Name: "verbose", Usage: "print the value count of every raw packet as it's received"},
	}
	app.Commands = []cli.Command{
		{Name: "reload", Usage: "recompile scripts and stream progress", Action: reloadCommand},
		{Name: "root-path", Usage: "print the absolute scripts root path", Action: rootPathCommand},
		{Name: "exec", Usage: "run a console command", ArgsUsage: "<command>", Action: execCommand},
		{Name: "mods", Usage: "list loaded script packages", Action: modsCommand},
		{
			Name:      "opcodes",
			Usage:     "print the compiled opcode breakdown for a function",
			ArgsUsage: "<func-name>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "class", Usage: "containing class name, if func-name is a member function"},
			},
			Action: opcodesCommand,
		},
		{
			Name:  "vars",
			Usage: "list config variables",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "section", Usage: "filter by section"},
				cli.StringFlag{Name: "name", Usage: "filter by name"},
			},
			Action: varsCommand,
		},
		{
			Name:      "scriptslog",
			Usage:     "tail the game's on-disk scriptslog.txt (no network connection)",
			ArgsUsage: "<path>",
			Action:    scriptsLogCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, clicolor.Red(err.Error(), clicolor.Enabled()))
		os.Exit(1)
	}
}

func targetPort(target string) (int, error) {
	switch strings.ToLower(target) {
	case "", "game":
		return 37001, nil
	case "editor":
		return 37002, nil
	default:
		return 0, fmt.Errorf("unknown --target %q (want game or editor)", target)
	}
}

func connect(c *cli.Context) (*client.Client, error) {
	port, err := targetPort(c.GlobalString("target"))
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(c.GlobalString("ip"))
	if ip == nil {
		return nil, fmt.Errorf("invalid --ip %q", c.GlobalString("ip"))
	}
	timeout := c.GlobalDuration("timeout")

	logger, err := newLogger(c.GlobalString("log-level"))
	if err != nil {
		return nil, err
	}

	cl, err := client.Connect(client.Options{
		IP:          ip,
		Port:        port,
		ConnTimeout: timeout,
		ReadTimeout: timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if c.GlobalBool("verbose") {
		cl.OnRawPacket(func(p *packet.Packet) {
			fmt.Println(clicolor.Magenta(fmt.Sprintf("<< %d values", len(p.Payload)), clicolor.Enabled()))
		})
	}
	if err := cl.Start(0); err != nil {
		cl.Close()
		return nil, err
	}
	return cl, nil
}

func disconnect(cl *client.Client) {
	cl.Stop()
	cl.Close()
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	switch strings.ToLower(level) {
	case "quiet":
		return zap.NewNop().Sugar(), nil
	case "output":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		l, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return l.Sugar(), nil
	case "all":
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return l.Sugar(), nil
	default:
		return nil, fmt.Errorf("unknown --log-level %q (want quiet, output, or all)", level)
	}
}

// execPaceLimiter caps how fast successive exec output lines print.
// --no-delay bypasses it entirely.
var execPaceLimiter = rate.NewLimiter(rate.Limit(20), 1)

func pace(c *cli.Context) {
	if c.GlobalBool("no-delay") {
		return
	}
	execPaceLimiter.Wait(context.Background())
}

func reloadCommand(c *cli.Context) error {
	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer disconnect(cl)

	done := make(chan struct{})
	if err := cl.OnScriptsReloadProgress(func(p message.ReloadProgress) {
		printReloadProgress(p)
		if p.Kind == message.ReloadProgressFinished {
			close(done)
		}
	}); err != nil {
		return err
	}
	if err := cl.ReloadScripts(); err != nil {
		return err
	}
	<-done
	return nil
}

func printReloadProgress(p message.ReloadProgress) {
	enabled := clicolor.Enabled()
	switch p.Kind {
	case message.ReloadProgressStarted:
		fmt.Println(clicolor.Cyan("reload started", enabled))
	case message.ReloadProgressLog:
		fmt.Println(p.Message)
	case message.ReloadProgressWarn:
		fmt.Println(clicolor.Yellow(fmt.Sprintf("%s:%d: %s", p.ScriptPath, p.Line, p.Message), enabled))
	case message.ReloadProgressError:
		fmt.Println(clicolor.Red(fmt.Sprintf("%s:%d: %s", p.ScriptPath, p.Line, p.Message), enabled))
	case message.ReloadProgressFinished:
		if p.Success {
			fmt.Println(clicolor.Green("reload finished", enabled))
		} else {
			fmt.Println(clicolor.Red("reload failed", enabled))
		}
	}
}

func rootPathCommand(c *cli.Context) error {
	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer disconnect(cl)

	path, err := cl.ScriptsRootPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func execCommand(c *cli.Context) error {
	cmd := strings.Join(c.Args(), " ")
	if cmd == "" {
		return fmt.Errorf("exec requires a command argument")
	}

	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer disconnect(cl)

	result, err := cl.ExecuteCommand(cmd)
	if err != nil {
		return err
	}
	enabled := clicolor.Enabled()
	if result.Failed {
		fmt.Println(clicolor.Red("command failed", enabled))
		return nil
	}
	for _, line := range result.LogOutput {
		pace(c)
		fmt.Println(line)
	}
	return nil
}

func modsCommand(c *cli.Context) error {
	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer disconnect(cl)

	pkgs, err := cl.ScriptPackages()
	if err != nil {
		return err
	}
	for _, p := range pkgs {
		fmt.Printf("%s\t%s\n", p.Name, p.AbsScriptsRootPath)
	}
	return nil
}

func opcodesCommand(c *cli.Context) error {
	funcName := c.Args().First()
	if funcName == "" {
		return fmt.Errorf("opcodes requires a function name argument")
	}

	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer disconnect(cl)

	breakdowns, err := cl.Opcodes(message.OpcodesQuery{FuncName: funcName, ClassName: c.String("class")})
	if err != nil {
		return err
	}
	for _, b := range breakdowns {
		fmt.Printf("line %d:\n", b.Line)
		for _, op := range b.Opcodes {
			fmt.Printf("\t%s\n", op)
		}
	}
	return nil
}

func varsCommand(c *cli.Context) error {
	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer disconnect(cl)

	vars, err := cl.ConfigVars(message.ConfigVarsQuery{
		SectionFilter: c.String("section"),
		NameFilter:    c.String("name"),
	})
	if err != nil {
		return err
	}
	for _, v := range vars {
		fmt.Printf("%s.%s = %s\n", v.Section, v.Name, v.Value)
	}
	return nil
}

func scriptsLogCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("scriptslog requires a file path argument")
	}
	stop := make(chan struct{})
	return logtail.Follow(path, 0, stop, func(line string) {
		fmt.Print(line)
	})
}
