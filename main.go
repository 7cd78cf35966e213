package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shazow/wifibridge/internal/api"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

// newCommand builds the command tree. Every subcommand except serve talks to a
// running daemon through the local API.
func newCommand(stdout, stderr io.Writer) *ffcli.Command {
	var (
		cfg         Config
		rootFlagSet = flag.NewFlagSet("wifibridge", flag.ContinueOnError)
		version     = rootFlagSet.Bool("version", false, "display version")
	)
	cfg.RegisterFlags(rootFlagSet)
	rootFlagSet.SetOutput(stderr)

	client := func() *api.Client { return api.NewClient(cfg.Listen) }

	jsonCommand := func(name, shortHelp string, run func(ctx context.Context, asJSON bool, c *api.Client) error) *ffcli.Command {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		asJSON := fs.Bool("json", false, "output in JSON format")
		return &ffcli.Command{
			Name:      name,
			ShortHelp: shortHelp,
			FlagSet:   fs,
			Exec: func(ctx context.Context, args []string) error {
				return run(ctx, *asJSON, client())
			},
		}
	}

	serveCmd := &ffcli.Command{
		Name:      "serve",
		ShortHelp: "Run the bridge daemon and its local API",
		Exec: func(ctx context.Context, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(ctx, stderr, &cfg)
		},
	}

	statusCmd := jsonCommand("status", "Show the current connection", func(ctx context.Context, asJSON bool, c *api.Client) error {
		return runStatus(ctx, stdout, asJSON, c)
	})
	watchCmd := jsonCommand("watch", "Stream connection status changes", func(ctx context.Context, asJSON bool, c *api.Client) error {
		return runWatch(ctx, stdout, asJSON, c)
	})
	scanCmd := jsonCommand("scan", "Scan and list wifi networks", func(ctx context.Context, asJSON bool, c *api.Client) error {
		return runScan(ctx, stdout, asJSON, c)
	})
	profilesCmd := jsonCommand("profiles", "List remembered networks", func(ctx context.Context, asJSON bool, c *api.Client) error {
		return runProfiles(ctx, stdout, asJSON, c)
	})
	infoCmd := jsonCommand("info", "Show wifi capabilities", func(ctx context.Context, asJSON bool, c *api.Client) error {
		return runInfo(ctx, stdout, asJSON, c)
	})
	propertiesCmd := jsonCommand("properties", "Show the remote service properties", func(ctx context.Context, asJSON bool, c *api.Client) error {
		return runProperties(ctx, stdout, asJSON, c)
	})

	enableCmd := &ffcli.Command{
		Name:      "enable",
		ShortHelp: "Power wifi on",
		Exec: func(ctx context.Context, args []string) error {
			return runSetState(ctx, stdout, "enabled", client())
		},
	}
	disableCmd := &ffcli.Command{
		Name:      "disable",
		ShortHelp: "Power wifi off",
		Exec: func(ctx context.Context, args []string) error {
			return runSetState(ctx, stdout, "disabled", client())
		},
	}

	var opts connectOptions
	connectFlagSet := flag.NewFlagSet("connect", flag.ContinueOnError)
	connectFlagSet.IntVar(&opts.ProfileID, "profile", 0, "connect to a remembered network by profile id")
	connectFlagSet.StringVar(&opts.Security, "security", "", "security type (none, wep, wpa-personal)")
	connectFlagSet.StringVar(&opts.Passphrase, "passphrase", "", "passphrase for the network")
	connectFlagSet.IntVar(&opts.KeyIndex, "key-index", -1, "WEP key index")
	connectFlagSet.BoolVar(&opts.Hex, "hex", false, "passphrase is hex encoded")
	connectFlagSet.BoolVar(&opts.Hidden, "hidden", false, "network is hidden")
	connectCmd := &ffcli.Command{
		Name:       "connect",
		ShortUsage: "wifibridge connect [flags] [<ssid>]",
		ShortHelp:  "Connect to a wifi network",
		FlagSet:    connectFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			var ssid string
			if len(args) > 0 {
				ssid = args[0]
			}
			params, err := connectParams(ssid, opts)
			if err != nil {
				return err
			}
			return runConnect(ctx, stdout, params, client())
		},
	}

	profileFlagSet := flag.NewFlagSet("profile", flag.ContinueOnError)
	profileJSON := profileFlagSet.Bool("json", false, "output in JSON format")
	profileCmd := &ffcli.Command{
		Name:       "profile",
		ShortUsage: "wifibridge profile [flags] <id>",
		ShortHelp:  "Show a remembered network",
		FlagSet:    profileFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			id, err := profileArg("profile", args)
			if err != nil {
				return err
			}
			return runProfile(ctx, stdout, *profileJSON, id, client())
		},
	}
	forgetCmd := &ffcli.Command{
		Name:       "forget",
		ShortUsage: "wifibridge forget <id>",
		ShortHelp:  "Forget a remembered network",
		Exec: func(ctx context.Context, args []string) error {
			id, err := profileArg("forget", args)
			if err != nil {
				return err
			}
			return runForget(ctx, stdout, id, client())
		},
	}

	return &ffcli.Command{
		ShortUsage: "wifibridge [flags] <subcommand> [args...]",
		FlagSet:    rootFlagSet,
		Options:    cfg.Options(),
		Subcommands: []*ffcli.Command{
			serveCmd, statusCmd, watchCmd, enableCmd, disableCmd, scanCmd,
			connectCmd, profilesCmd, profileCmd, forgetCmd, infoCmd, propertiesCmd,
		},
		Exec: func(ctx context.Context, args []string) error {
			if *version {
				fmt.Fprintln(stdout, Version)
				return nil
			}
			return flag.ErrHelp
		},
	}
}

func profileArg(cmd string, args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s requires a profile id", cmd)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid profile id: %q", args[0])
	}
	return id, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newCommand(os.Stdout, os.Stderr)
	if err := root.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := root.Run(ctx); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
