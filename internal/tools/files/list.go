package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cogent-run/cogent/internal/agent"
)

// ListTool implements a safe directory listing.
type ListTool struct {
	resolver   Resolver
	maxEntries int
}

// NewListTool creates a list tool scoped to the workspace.
func NewListTool(cfg Config) *ListTool {
	return &ListTool{
		resolver:   Resolver{Root: cfg.Workspace},
		maxEntries: 2000,
	}
}

// Name returns the tool name.
func (t *ListTool) Name() string {
	return "list_directory"
}

// Description returns the tool description.
func (t *ListTool) Description() string {
	return "List the entries of a directory in the workspace, optionally recursing into subdirectories."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ListTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (relative to workspace, default: workspace root).",
			},
			"recursive": map[string]interface{}{
				"type":        "boolean",
				"description": "Recurse into subdirectories (default: false).",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type listEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Bytes int64  `json:"bytes,omitempty"`
}

// Execute lists directory entries within the workspace.
func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
		}
	}
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("stat path: %v", err)), nil
	}
	if !info.IsDir() {
		return toolError(fmt.Sprintf("%s is not a directory", input.Path)), nil
	}

	var entries []listEntry
	truncated := false

	if input.Recursive {
		walkErr := filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == resolved {
				return nil
			}
			if len(entries) >= t.maxEntries {
				truncated = true
				return filepath.SkipAll
			}
			rel, relErr := filepath.Rel(resolved, p)
			if relErr != nil {
				return relErr
			}
			entry := listEntry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
			if !d.IsDir() {
				if fi, statErr := d.Info(); statErr == nil {
					entry.Bytes = fi.Size()
				}
			}
			entries = append(entries, entry)
			return nil
		})
		if walkErr != nil {
			return toolError(fmt.Sprintf("walk directory: %v", walkErr)), nil
		}
	} else {
		dirEntries, readErr := os.ReadDir(resolved)
		if readErr != nil {
			return toolError(fmt.Sprintf("read directory: %v", readErr)), nil
		}
		for _, d := range dirEntries {
			if len(entries) >= t.maxEntries {
				truncated = true
				break
			}
			entry := listEntry{Path: d.Name(), IsDir: d.IsDir()}
			if !d.IsDir() {
				if fi, statErr := d.Info(); statErr == nil {
					entry.Bytes = fi.Size()
				}
			}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	result := map[string]interface{}{
		"path":      input.Path,
		"entries":   entries,
		"truncated": truncated,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
