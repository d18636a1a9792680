package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/arcana/internal/logging"
	"github.com/hpungsan/arcana/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"card", "spread", "daily", "reading", "journal", "data"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"card_list": {
		def:     cardListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCardList },
	},
	"card_get": {
		def:     cardGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCardGet },
	},
	"spread_list": {
		def:     spreadListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSpreadList },
	},
	"spread_get": {
		def:     spreadGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSpreadGet },
	},
	"spread_draw": {
		def:     spreadDrawToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSpreadDraw },
	},
	"daily_get": {
		def:     dailyGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDailyGet },
	},
	"daily_reflect": {
		def:     dailyReflectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDailyReflect },
	},
	"reading_create": {
		def:     readingCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReadingCreate },
	},
	"reading_list": {
		def:     readingListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReadingList },
	},
	"reading_get": {
		def:     readingGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReadingGet },
	},
	"reading_notes": {
		def:     readingNotesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReadingNotes },
	},
	"reading_delete": {
		def:     readingDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReadingDelete },
	},
	"journal_add": {
		def:     journalAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalAdd },
	},
	"journal_list": {
		def:     journalListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalList },
	},
	"journal_get": {
		def:     journalGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalGet },
	},
	"data_export": {
		def:     dataExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDataExport },
	},
	"data_import": {
		def:     dataImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDataImport },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "reading_create" → "reading").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the arcana tools registered.
// Tools listed in the config's DisabledTools or belonging to DisabledTypes
// are excluded from registration; unknown names in either list are logged.
func NewServer(deps *ops.Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"arcana",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}

	for _, name := range ValidateDisabledTools(cfg.DisabledTools) {
		log.Warn("unknown tool in disabled_tools", "tool", name)
	}
	for _, name := range ValidateDisabledTypes(cfg.DisabledTypes) {
		log.Warn("unknown type in disabled_types", "type", name)
	}

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	registered := 0
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
		registered++
	}
	log.Debug("mcp tools registered", "count", registered, "disabled", len(toolRegistry)-registered)

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps *ops.Deps, version string) error {
	s := NewServer(deps, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
