package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/arcana/internal/errors"
	"github.com/hpungsan/arcana/internal/ops"
	"github.com/hpungsan/arcana/internal/state"
	"github.com/hpungsan/arcana/internal/web"
)

// newCLIApp creates the CLI application with all commands. deps may be nil
// when only help or version output is needed.
func newCLIApp(deps *ops.Deps, logger *slog.Logger) *cli.App {
	app := &cli.App{
		Name:    "arcana",
		Usage:   "Tarot companion: card of the day, readings and a journal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "Owner namespace (default: config owner)", EnvVars: []string{"ARCANA_OWNER"}},
		},
		Commands: []*cli.Command{
			dailyCmd(deps),
			cardsCmd(deps),
			cardCmd(deps),
			spreadsCmd(deps),
			spreadCmd(deps),
			drawCmd(deps),
			readingCmd(deps),
			journalCmd(deps),
			exportCmd(deps),
			importCmd(deps),
			serveCmd(deps, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// dailyCmd creates the daily command.
func dailyCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "daily",
		Usage: "Show today's card, drawing it on the first call of the day",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reflect", Aliases: []string{"r"}, Usage: "Attach a reflection to today's card"},
		},
		Action: func(c *cli.Context) error {
			owner := c.String("owner")
			daily, err := ops.DailyCard(c.Context, deps, ops.DailyInput{Owner: owner})
			if err != nil {
				return outputError(err)
			}

			if c.IsSet("reflect") {
				daily, err = ops.ReflectDaily(c.Context, deps, ops.ReflectInput{
					Owner:      owner,
					Reflection: c.String("reflect"),
				})
				if err != nil {
					return outputError(err)
				}
			}

			return outputJSON(c, daily)
		},
	}
}

// cardsCmd creates the cards command.
func cardsCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "cards",
		Usage: "List cards, optionally filtered",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Match name, keywords or description"},
			&cli.StringFlag{Name: "arcana", Aliases: []string{"a"}, Usage: "major|minor"},
			&cli.StringFlag{Name: "suit", Aliases: []string{"s"}, Usage: "wands|cups|swords|pentacles"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListCards(c.Context, deps, ops.ListCardsInput{
				Query:  c.String("query"),
				Arcana: c.String("arcana"),
				Suit:   c.String("suit"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// cardCmd creates the card command.
func cardCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "card",
		Usage:     "Show one card",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "card id")
			if err != nil {
				return outputError(err)
			}

			card, found, err := ops.GetCard(c.Context, deps, id)
			if err != nil {
				return outputError(err)
			}
			if !found {
				return outputError(errors.NewNotFound("card", id))
			}

			return outputJSON(c, card)
		},
	}
}

// spreadsCmd creates the spreads command.
func spreadsCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "spreads",
		Usage: "List spreads",
		Action: func(c *cli.Context) error {
			spreads, err := ops.ListSpreads(c.Context, deps)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, map[string]any{"items": spreads, "count": len(spreads)})
		},
	}
}

// spreadCmd creates the spread command.
func spreadCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "spread",
		Usage:     "Show one spread and its positions",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := spreadIDArg(c)
			if err != nil {
				return outputError(err)
			}

			spread, found, err := ops.GetSpread(c.Context, deps, id)
			if err != nil {
				return outputError(err)
			}
			if !found {
				return outputError(errors.NewNotFound("spread", strconv.Itoa(id)))
			}

			return outputJSON(c, spread)
		},
	}
}

// drawCmd creates the draw command.
func drawCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "draw",
		Usage:     "Deal a random spread",
		ArgsUsage: "<spread-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "The question for the reading"},
			&cli.BoolFlag{Name: "save", Usage: "Save the draw as a reading"},
		},
		Action: func(c *cli.Context) error {
			id, err := spreadIDArg(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.DrawSpread(c.Context, deps, ops.DrawInput{
				Owner:    c.String("owner"),
				SpreadID: id,
				Question: c.String("question"),
				Save:     c.Bool("save"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// readingCmd groups the reading log subcommands.
func readingCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "reading",
		Usage: "Manage saved readings",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Save a reading with cards you drew yourself",
				ArgsUsage: "<spread-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "The question for the reading"},
					&cli.StringSliceFlag{Name: "card", Aliases: []string{"c"}, Usage: "Card in position order, as id[:reversed] (repeat per position)"},
				},
				Action: func(c *cli.Context) error {
					id, err := spreadIDArg(c)
					if err != nil {
						return outputError(err)
					}

					reading, err := ops.CreateReading(c.Context, deps, ops.CreateReadingInput{
						Owner:    c.String("owner"),
						SpreadID: id,
						Question: c.String("question"),
						Cards:    parsePlacements(c.StringSlice("card")),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, reading)
				},
			},
			{
				Name:  "list",
				Usage: "List readings, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "spread", Usage: "Filter by spread id"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListReadings(c.Context, deps, ops.ListReadingsInput{
						Owner:    c.String("owner"),
						SpreadID: c.Int("spread"),
						Limit:    c.Int("limit"),
						Offset:   c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, output)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one reading",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "reading id")
					if err != nil {
						return outputError(err)
					}

					reading, found, err := ops.GetReading(c.Context, deps, ops.GetReadingInput{Owner: c.String("owner"), ID: id})
					if err != nil {
						return outputError(err)
					}
					if !found {
						return outputError(errors.NewNotFound("reading", id))
					}

					return outputJSON(c, reading)
				},
			},
			{
				Name:      "notes",
				Usage:     "Replace a reading's notes (--notes or piped stdin)",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "notes", Aliases: []string{"n"}, Usage: "New notes"},
				},
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "reading id")
					if err != nil {
						return outputError(err)
					}

					notes := c.String("notes")
					if !c.IsSet("notes") {
						if !stdinHasData() {
							return outputError(errors.NewInvalidRequest("notes must be passed with --notes or piped via stdin"))
						}
						if notes, err = readStdin(); err != nil {
							return outputError(errors.NewInternal(err))
						}
					}

					output, err := ops.UpdateReadingNotes(c.Context, deps, ops.UpdateNotesInput{
						Owner: c.String("owner"),
						ID:    id,
						Notes: notes,
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a reading",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "reading id")
					if err != nil {
						return outputError(err)
					}

					output, err := ops.DeleteReading(c.Context, deps, ops.DeleteReadingInput{Owner: c.String("owner"), ID: id})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, output)
				},
			},
		},
	}
}

// journalCmd groups the journal subcommands.
func journalCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Write and read journal entries",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Append an entry (text as arguments or piped stdin)",
				ArgsUsage: "[text...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "card", Usage: "Card this entry is about"},
					&cli.StringFlag{Name: "reading", Usage: "Reading this entry is about"},
				},
				Action: func(c *cli.Context) error {
					content := strings.Join(c.Args().Slice(), " ")
					if content == "" && stdinHasData() {
						text, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						content = text
					}

					entry, err := ops.AddJournalEntry(c.Context, deps, ops.AddJournalInput{
						Owner:     c.String("owner"),
						Content:   content,
						CardID:    c.String("card"),
						ReadingID: c.String("reading"),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, entry)
				},
			},
			{
				Name:  "list",
				Usage: "List entries, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "card", Usage: "Filter by card id"},
					&cli.StringFlag{Name: "reading", Usage: "Filter by reading id"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListJournal(c.Context, deps, ops.ListJournalInput{
						Owner:     c.String("owner"),
						CardID:    c.String("card"),
						ReadingID: c.String("reading"),
						Limit:     c.Int("limit"),
						Offset:    c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(c, output)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one entry",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "journal entry id")
					if err != nil {
						return outputError(err)
					}

					entry, found, err := ops.GetJournalEntry(c.Context, deps, ops.GetJournalInput{Owner: c.String("owner"), ID: id})
					if err != nil {
						return outputError(err)
					}
					if !found {
						return outputError(errors.NewNotFound("journal entry", id))
					}

					return outputJSON(c, entry)
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export readings, journal and today's card to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.arcana/exports/<owner>-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, deps, ops.ExportInput{
				Owner: c.String("owner"),
				Path:  c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import records from a JSONL file, skipping ids that already exist",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, deps, ops.ImportInput{
				Owner: c.String("owner"),
				Path:  c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// serveCmd creates the serve command, which runs the web UI.
func serveCmd(deps *ops.Deps, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Value: 7337, Usage: "Port to listen on", EnvVars: []string{"ARCANA_PORT"}},
		},
		Action: func(c *cli.Context) error {
			facade := state.New(deps, c.String("owner"), logger)
			srv, err := web.NewServer(facade, logger, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, logger)
		},
	}
}

// Helper functions

// outputJSON writes result to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	var w io.Writer = os.Stdout
	if c != nil && c.App != nil && c.App.Writer != nil {
		w = c.App.Writer
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if aErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func requireArg(c *cli.Context, what string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", errors.NewInvalidRequest(what + " is required")
	}
	return arg, nil
}

func spreadIDArg(c *cli.Context) (int, error) {
	arg, err := requireArg(c, "spread id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("spread id must be an integer, got %q", arg))
	}
	return id, nil
}

// parsePlacements turns "id" or "id:orientation" values into placements.
// Orientation is validated by the reading log.
func parsePlacements(values []string) []ops.CardPlacement {
	out := make([]ops.CardPlacement, 0, len(values))
	for _, v := range values {
		id, orientation, _ := strings.Cut(strings.TrimSpace(v), ":")
		out = append(out, ops.CardPlacement{
			CardID:      strings.TrimSpace(id),
			Orientation: strings.TrimSpace(orientation),
		})
	}
	return out
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
