package sync

import (
	"context"
	"io"

	"github.com/tonimelisma/tripletsync/internal/remote"
)

// --- Consumer-defined collaborator interfaces ---
// The engine only depends on these; concrete implementations live in
// internal/remote (session), trackdb.go (tracking database) and executor.go.

// Session is the handle to the remote content repository. It is shared
// read-only by every worker, so implementations must be safe for
// concurrent use. Paths are slash-separated and rooted at "/".
type Session interface {
	Walk(ctx context.Context, fn func(remote.Item) error) error
	Stat(ctx context.Context, path string) (*remote.Item, error)
	Upload(ctx context.Context, path string, r io.Reader) (*remote.Item, error)
	Download(ctx context.Context, path string, w io.Writer) (*remote.Item, error)
	CreateFolder(ctx context.Context, path string) (*remote.Item, error)
	Delete(ctx context.Context, path string, isFolder bool) error
}

// Crawler discovers items and pushes their triplets onto out. It must not
// mark out complete; the Source owns the queue lifecycle.
type Crawler interface {
	Crawl(ctx context.Context, out *TripletQueue) error
}

// Phase tells the executor which pipeline phase is invoking it.
type Phase int

// Pipeline phases.
const (
	// PhaseBulk is the first pass. Folder deletions are deferred.
	PhaseBulk Phase = iota
	// PhaseFolderDeletion is a deletion wave. Folder deletions run.
	PhaseFolderDeletion
)

// String returns the phase name used in logs and reports.
func (p Phase) String() string {
	if p == PhaseFolderDeletion {
		return "folder-deletion"
	}

	return "bulk"
}

// SyncFolder is the per-run folder context handed to the executor.
type SyncFolder struct {
	LocalRoot string
	StateDir  string
	Direction Direction
	DryRun    bool
}

// Request is one execution request for the action executor.
type Request struct {
	Triplet *Triplet
	Session Session
	Folder  *SyncFolder
	Phase   Phase
}

// ActionType names the concrete operation chosen for a triplet.
type ActionType string

// Actions the executor can choose.
const (
	ActionNone               ActionType = "none"
	ActionUpload             ActionType = "upload"
	ActionDownload           ActionType = "download"
	ActionCreateRemoteFolder ActionType = "create-remote-folder"
	ActionCreateLocalFolder  ActionType = "create-local-folder"
	ActionRecord             ActionType = "record"
	ActionDeleteLocal        ActionType = "delete-local"
	ActionDeleteRemote       ActionType = "delete-remote"
	ActionForget             ActionType = "forget"
	ActionConflict           ActionType = "conflict"
)

// IsFolderDeletion reports whether the action deletes a folder on either side.
func IsFolderDeletion(a ActionType, isFolder bool) bool {
	return isFolder && (a == ActionDeleteLocal || a == ActionDeleteRemote)
}

// OutcomeKind classifies an execution result.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeDeferred
	OutcomeFailed
)

// String returns the lowercase outcome name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what the executor reports back for one request. Deferred is
// only returned for folder deletions during PhaseBulk and has no side effect.
type Outcome struct {
	Kind    OutcomeKind
	Action  ActionType
	Triplet *Triplet
	Err     error
}

// ActionExecutor decides and performs the concrete operation for a triplet.
type ActionExecutor interface {
	Execute(ctx context.Context, req Request) Outcome
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, req Request) Outcome

// Execute calls f.
func (f ActionExecutorFunc) Execute(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}

// Ledger is the write side of the tracking database used by the executor.
type Ledger interface {
	Get(ctx context.Context, name string) (*TrackedItem, error)
	Upsert(ctx context.Context, item *TrackedItem) error
	Delete(ctx context.Context, name string) error
}
