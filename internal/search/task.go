package search

import (
	"fmt"
	"strings"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// TaskProfile selects the instruction prefixes prepended to queries and,
// optionally, to documents before embedding.
type TaskProfile string

const (
	// TaskNone embeds text without any prefix.
	TaskNone       TaskProfile = "none"
	TaskQA         TaskProfile = "qa"
	TaskICL        TaskProfile = "icl"
	TaskChat       TaskProfile = "chat"
	TaskLRLM       TaskProfile = "lrlm"
	TaskTool       TaskProfile = "tool"
	TaskConvSearch TaskProfile = "convsearch"
)

type taskPrefixes struct {
	query string
	key   string
}

var taskTable = map[TaskProfile]taskPrefixes{
	TaskNone: {},
	TaskQA: {
		query: "Represent this query for retrieving relevant documents: ",
		key:   "Represent this document for retrieval: ",
	},
	TaskICL: {
		query: "Convert this example into vector to look for useful examples: ",
		key:   "Convert this example into vector for retrieval: ",
	},
	TaskChat: {
		query: "Embed this dialogue to find useful historical dialogues: ",
		key:   "Embed this historical dialogue for retrieval: ",
	},
	TaskLRLM: {
		query: "Embed this text chunk for finding useful historical chunks: ",
		key:   "Embed this historical text chunk for retrieval: ",
	},
	TaskTool: {
		query: "Transform this user request for fetching helpful tool descriptions: ",
		key:   "Transform this tool description for retrieval: ",
	},
	TaskConvSearch: {
		query: "Encode this query and context for searching relevant passages: ",
		key:   "Encode this passage for retrieval: ",
	},
}

// TaskProfiles lists every profile in display order.
func TaskProfiles() []TaskProfile {
	return []TaskProfile{TaskQA, TaskICL, TaskChat, TaskLRLM, TaskTool, TaskConvSearch, TaskNone}
}

// ParseTaskProfile validates a profile name. Matching is case-insensitive.
func ParseTaskProfile(name string) (TaskProfile, error) {
	t := TaskProfile(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := taskTable[t]; ok {
		return t, nil
	}
	return "", ragerrors.New(ragerrors.ErrCodeUnknownTask,
		fmt.Sprintf("unknown task profile %q", name), nil).
		WithSuggestion("use one of qa, icl, chat, lrlm, tool, convsearch, none")
}

// QueryPrefix is prepended to a query before embedding.
func (t TaskProfile) QueryPrefix() string {
	return taskTable[t].query
}

// KeyPrefix is prepended to a chunk before embedding when key prefixes are enabled.
func (t TaskProfile) KeyPrefix() string {
	return taskTable[t].key
}

// Valid reports whether t is a known profile.
func (t TaskProfile) Valid() bool {
	_, ok := taskTable[t]
	return ok
}

func (t TaskProfile) String() string { return string(t) }
