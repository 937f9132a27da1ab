package tools

import "github.com/dmathers/foreman/internal/store"

// BuiltinDescriptors returns the descriptors for the builtin tool set.
// Serve mode seeds these into the store on startup so agents can be
// given any subset of them.
func BuiltinDescriptors() []*store.ToolDescriptor {
	return []*store.ToolDescriptor{
		{
			Name: "update_plan",
			Description: "Create and maintain your execution plan. Use action \"create\" with a goal " +
				"and a list of steps to make a plan, \"update_step\" with step_number and status " +
				"(pending, in_progress, completed) to track progress, and \"complete\" when every " +
				"step is done.",
			InputSchema: `{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["create", "update_step", "complete"]},
		"goal": {"type": "string", "description": "The overall goal (create only)"},
		"steps": {"type": "array", "items": {"type": "string"}, "description": "Ordered step descriptions (create only)"},
		"step_number": {"type": "integer", "description": "Which step to update (update_step only)"},
		"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
		"result": {"type": "string", "description": "Outcome summary when completing a step"}
	},
	"required": ["action"]
}`,
			ToolType: store.ToolBuiltin,
		},
		{
			Name:        "save_memory",
			Description: "Save a long-term fact or preference you should remember in future sessions.",
			InputSchema: `{
	"type": "object",
	"properties": {
		"content": {"type": "string", "description": "The fact to remember"},
		"importance": {"type": "number", "description": "How important this is, 0.0 to 1.0"}
	},
	"required": ["content"]
}`,
			ToolType: store.ToolBuiltin,
		},
		{
			Name:        "read_file",
			Description: "Read a file from the workspace. Paths are relative to the workspace root.",
			InputSchema: `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Relative path of the file to read"}
	},
	"required": ["path"]
}`,
			ToolType: store.ToolBuiltin,
		},
		{
			Name:        "write_file",
			Description: "Write a file into the workspace, creating parent directories as needed.",
			InputSchema: `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Relative path of the file to write"},
		"content": {"type": "string", "description": "Full file contents"}
	},
	"required": ["path", "content"]
}`,
			ToolType: store.ToolBuiltin,
		},
		{
			Name:        "web_search",
			Description: "Search the web for current information.",
			InputSchema: `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "The search query"}
	},
	"required": ["query"]
}`,
			ToolType: store.ToolBuiltin,
		},
	}
}
