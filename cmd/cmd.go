// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

// setupCommand handles setup operations for configuration and databases.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the content and queue databases and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand runs the HTTP API and websocket hub.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the tasting API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (overrides [server] host)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides [server] port)"},
		},
		Action: r.Serve,
	}
}

// packageCommand handles package authoring and maintenance.
func packageCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "package",
		Aliases: []string{"pkg"},
		Usage:   "Tasting package operations",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Create a package from a TOML document",
				Arguments: []cli.Argument{&cli.StringArg{Name: "file"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.PackageImport,
			},
			{
				Name:  "list",
				Usage: "List packages",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Only the package with this code"},
					jsonFlag(),
				},
				Action: r.PackageList,
			},
			{
				Name:  "outline",
				Usage: "Print the aggregated slide order of a package",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Package code", Required: true},
					&cli.StringFlag{Name: "session", Usage: "Apply the wine selections of this session (id or short code)"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "markdown, text or json", Value: "text"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to a file instead of stdout"},
				},
				Action: r.PackageOutline,
			},
			{
				Name:  "repair",
				Usage: "Renumber duplicate or invalid slide positions and refresh global positions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Package code", Required: true},
					&cli.BoolFlag{Name: "compact", Usage: "Renumber every section, not only damaged ones"},
					jsonFlag(),
				},
				Action: r.PackageRepair,
			},
		},
	}
}

// sessionCommand handles host-side session operations.
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Tasting session operations",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Open a session for a package",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Package code", Required: true},
					&cli.StringFlag{Name: "short-code", Usage: "Join code (generated when empty)"},
					jsonFlag(),
				},
				Action: r.SessionCreate,
			},
			{
				Name:  "list",
				Usage: "List sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Only sessions of this package"},
					&cli.StringFlag{Name: "status", Usage: "active or completed"},
					jsonFlag(),
				},
				Action: r.SessionList,
			},
			{
				Name:      "complete",
				Usage:     "Close a session to further answers",
				Arguments: []cli.Argument{&cli.StringArg{Name: "session"}},
				Action:    r.SessionComplete,
			},
			{
				Name:  "export",
				Usage: "Export session responses",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "id", Usage: "Session id or short code (repeatable)", Required: true},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "csv, markdown or json", Value: "csv"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent exports", Value: 4},
					&cli.BoolFlag{Name: "fetch-images", Usage: "Download wine images for markdown exports"},
				},
				Action: r.SessionExport,
			},
		},
	}
}

// playCommand launches the participant player.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Join a session and taste along in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session short code", Required: true},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name", Required: true},
			&cli.BoolFlag{Name: "host", Usage: "Join as the host; your steps pace the room"},
			&cli.BoolFlag{Name: "fresh", Usage: "Ignore saved progress and join as a new participant"},
			&cli.StringFlag{Name: "log-file", Usage: "Player log file", Value: "./tmp/tasting-play.log"},
		},
		Action: r.Play,
	}
}

// syncCommand drains the offline answer queue.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Send queued answers to the API",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run a single pass and exit"},
			jsonFlag(),
		},
		Action: r.Sync,
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the tasting API",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.APIGet,
			},
			{
				Name:      "post",
				Usage:     "Direct POST with JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON body to send", Required: true},
				},
				Action: r.APIPost,
			},
			{
				Name:      "put",
				Usage:     "Direct PUT with JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON body to send", Required: true},
				},
				Action: r.APIPut,
			},
			{
				Name:   "status",
				Usage:  "Check the API is reachable (calls /health)",
				Action: r.APIStatus,
			},
		},
	}
}
