package mcp

import "github.com/mark3labs/mcp-go/mcp"

var ownerOption = mcp.WithString("owner",
	mcp.Description("Collection owner. Defaults to the configured owner."),
)

var cardListToolDef = mcp.NewTool("card_list",
	mcp.WithDescription("List tarot cards from the 78-card catalog, optionally filtered by free text, arcana or suit."),
	mcp.WithString("query", mcp.Description("Case-insensitive match against name, keywords and description")),
	mcp.WithString("arcana", mcp.Description("major or minor"), mcp.Enum("major", "minor")),
	mcp.WithString("suit", mcp.Description("Minor arcana suit"), mcp.Enum("cups", "pentacles", "swords", "wands")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var cardGetToolDef = mcp.NewTool("card_get",
	mcp.WithDescription("Get one card by id (m00-m21 for the major arcana, c/p/s/w01-14 for the minor arcana)."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Card id, e.g. m17 or c02")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var spreadListToolDef = mcp.NewTool("spread_list",
	mcp.WithDescription("List the available spread layouts with their positions."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var spreadGetToolDef = mcp.NewTool("spread_get",
	mcp.WithDescription("Get one spread layout by id."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Spread id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var spreadDrawToolDef = mcp.NewTool("spread_draw",
	mcp.WithDescription("Draw distinct random cards for every position of a spread. Set save to keep it in the reading log."),
	mcp.WithNumber("spread_id", mcp.Required(), mcp.Description("Spread id")),
	mcp.WithString("question", mcp.Description("Question the reading answers")),
	mcp.WithBoolean("save", mcp.Description("Record the draw as a reading (default false)")),
	ownerOption,
)

var dailyGetToolDef = mcp.NewTool("daily_get",
	mcp.WithDescription("Get today's card. The first call of the day draws it; later calls return the same card."),
	ownerOption,
)

var dailyReflectToolDef = mcp.NewTool("daily_reflect",
	mcp.WithDescription("Attach a reflection to today's card. Replaces any earlier reflection."),
	mcp.WithString("reflection", mcp.Required(), mcp.Description("Reflection text; empty clears it")),
	ownerOption,
)

var readingCreateToolDef = mcp.NewTool("reading_create",
	mcp.WithDescription("Record a reading with one card per spread position, in position order."),
	mcp.WithNumber("spread_id", mcp.Required(), mcp.Description("Spread id")),
	mcp.WithString("question", mcp.Description("Question the reading answers")),
	mcp.WithArray("cards",
		mcp.Required(),
		mcp.Description("Cards in position order"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"card_id":     map[string]any{"type": "string"},
				"orientation": map[string]any{"type": "string", "enum": []string{"upright", "reversed"}},
			},
			"required": []string{"card_id"},
		}),
	),
	ownerOption,
)

var readingListToolDef = mcp.NewTool("reading_list",
	mcp.WithDescription("List readings newest first."),
	mcp.WithNumber("spread_id", mcp.Description("Only readings of this spread")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	ownerOption,
	mcp.WithReadOnlyHintAnnotation(true),
)

var readingGetToolDef = mcp.NewTool("reading_get",
	mcp.WithDescription("Get one reading by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Reading id")),
	ownerOption,
	mcp.WithReadOnlyHintAnnotation(true),
)

var readingNotesToolDef = mcp.NewTool("reading_notes",
	mcp.WithDescription("Replace the notes of a reading. Reports updated=false when the id is unknown."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Reading id")),
	mcp.WithString("notes", mcp.Required(), mcp.Description("New notes; empty clears them")),
	ownerOption,
)

var readingDeleteToolDef = mcp.NewTool("reading_delete",
	mcp.WithDescription("Delete a reading. Reports deleted=false when the id is unknown."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Reading id")),
	ownerOption,
	mcp.WithDestructiveHintAnnotation(true),
)

var journalAddToolDef = mcp.NewTool("journal_add",
	mcp.WithDescription("Append a journal entry, optionally tied to a card or a reading."),
	mcp.WithString("content", mcp.Required(), mcp.Description("Entry text")),
	mcp.WithString("card_id", mcp.Description("Card the entry is about")),
	mcp.WithString("reading_id", mcp.Description("Reading the entry is about")),
	ownerOption,
)

var journalListToolDef = mcp.NewTool("journal_list",
	mcp.WithDescription("List journal entries newest first."),
	mcp.WithString("card_id", mcp.Description("Only entries about this card")),
	mcp.WithString("reading_id", mcp.Description("Only entries about this reading")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	ownerOption,
	mcp.WithReadOnlyHintAnnotation(true),
)

var journalGetToolDef = mcp.NewTool("journal_get",
	mcp.WithDescription("Get one journal entry by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
	ownerOption,
	mcp.WithReadOnlyHintAnnotation(true),
)

var dataExportToolDef = mcp.NewTool("data_export",
	mcp.WithDescription("Write the daily card, readings and journal to a JSONL backup file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path. Defaults to a timestamped file in ~/.arcana/exports")),
	ownerOption,
)

var dataImportToolDef = mcp.NewTool("data_import",
	mcp.WithDescription("Restore records from a JSONL backup. Ids that already exist are skipped; bad lines are reported."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl path")),
	ownerOption,
)
