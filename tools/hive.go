package tools

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hivelight/hive-go-sdk/blocks"
	"github.com/hivelight/hive-go-sdk/core"
)

// maxHiveContent bounds the shared block's content. When an append
// would exceed it, the oldest note lines are trimmed first.
const maxHiveContent = 5000

// HiveToolkit exposes the cohort's shared block to the model:
// read_hive_notes and append_hive_note.
type HiveToolkit struct {
	manager *blocks.Manager
	logger  *zap.Logger
}

// HiveToolkitOption configures the toolkit.
type HiveToolkitOption func(*HiveToolkit)

// WithHiveLogger sets the structured logger.
func WithHiveLogger(logger *zap.Logger) HiveToolkitOption {
	return func(k *HiveToolkit) {
		k.logger = logger
	}
}

// NewHiveToolkit creates the toolkit over a block manager.
func NewHiveToolkit(manager *blocks.Manager, opts ...HiveToolkitOption) *HiveToolkit {
	k := &HiveToolkit{
		manager: manager,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Tools returns the toolkit's tools for registration.
func (k *HiveToolkit) Tools() []core.Tool {
	return []core.Tool{
		&readHiveNotesTool{k},
		&appendHiveNoteTool{k},
	}
}

type readHiveNotesTool struct {
	kit *HiveToolkit
}

func (t *readHiveNotesTool) Name() string { return "read_hive_notes" }

func (t *readHiveNotesTool) Description() string {
	return "Read the shared experience notes accumulated by every agent serving this cohort. Consult these before handling a request the cohort has likely seen before."
}

func (t *readHiveNotesTool) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{})
}

func (t *readHiveNotesTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	if params.CohortKey == "" {
		return core.ToolError("no cohort configured for this session"), nil
	}

	blk, err := t.kit.manager.GetOrCreateAndAttach(ctx, params.CohortKey, params.InstanceID)
	if err != nil {
		return core.ToolError("shared notes unavailable: " + err.Error()), nil
	}

	return core.ToolOK(map[string]interface{}{
		"content":  blk.Content,
		"block_id": blk.ID,
	}), nil
}

type appendHiveNoteTool struct {
	kit *HiveToolkit
}

func (t *appendHiveNoteTool) Name() string { return "append_hive_note" }

func (t *appendHiveNoteTool) Description() string {
	return "Add a note to the cohort's shared experience notes. Record only lessons that generalize across users of the cohort. Never record names, contact details, account numbers, or any other user-specific information."
}

func (t *appendHiveNoteTool) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"note": StringProperty("The lesson to record, phrased so any agent in the cohort can act on it."),
	}, "note")
}

func (t *appendHiveNoteTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var in struct {
		Note string `json:"note"`
	}
	if err := json.Unmarshal(params.Input, &in); err != nil {
		return core.ToolError("invalid input: " + err.Error()), nil
	}
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return core.ToolError("note must not be empty"), nil
	}
	if params.CohortKey == "" {
		return core.ToolError("no cohort configured for this session"), nil
	}

	blk, err := t.kit.manager.GetOrCreateAndAttach(ctx, params.CohortKey, params.InstanceID)
	if err != nil {
		return core.ToolError("shared notes unavailable: " + err.Error()), nil
	}

	content := appendNote(blk.Content, note)
	if err := t.kit.manager.UpdateContent(ctx, blk.ID, content); err != nil {
		return core.ToolError("failed to record note: " + err.Error()), nil
	}

	if err := t.kit.manager.Propagate(ctx, params.CohortKey); err != nil {
		// Convergence is eventual; a later call picks up the slack.
		t.kit.logger.Warn("propagation incomplete",
			zap.String("cohort", params.CohortKey),
			zap.Error(err))
	}

	return core.ToolOK(map[string]interface{}{
		"block_id": blk.ID,
	}), nil
}

// appendNote adds a bullet to the content, dropping the seed text on
// first write and trimming the oldest bullets when over budget.
func appendNote(content, note string) string {
	if content == blocks.InitialContent {
		content = ""
	}
	if content == "" {
		content = "- " + note
	} else {
		content = content + "\n- " + note
	}
	for len(content) > maxHiveContent {
		i := strings.Index(content, "\n")
		if i < 0 {
			// A single oversized note; cut from the front, but never
			// mid-rune.
			cut := len(content) - maxHiveContent
			for cut < len(content) && !utf8.RuneStart(content[cut]) {
				cut++
			}
			return content[cut:]
		}
		content = content[i+1:]
	}
	return content
}
