package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"
)

// dirPermissions is the Unix permission mode for newly created local folders.
const dirPermissions = 0o755

var (
	errRemoteChanged = errors.New("sync: remote item changed since it was crawled")
	errNotEmpty      = errors.New("sync: local folder is not empty")
)

// DecideAction picks the operation that reconciles t. It is a function of
// the triplet's existence and equality predicates only; the direction acts
// through LocalEqDB and RemoteEqDB.
func DecideAction(t *Triplet) ActionType {
	local, remote := t.LocalExists(), t.RemoteExists()
	localEq, remoteEq := t.LocalEqDB(), t.RemoteEqDB()

	switch {
	case localEq && remoteEq:
		return ActionNone
	case remoteEq:
		return decideLocalChange(t.IsFolder(), local, remote)
	case localEq:
		return decideRemoteChange(t.IsFolder(), local, remote)
	}

	// Both sides changed since the last sync.
	switch {
	case local && remote && t.IsFolder():
		return ActionRecord
	case local && remote:
		return ActionConflict
	case local:
		return decideLocalChange(t.IsFolder(), true, false)
	case remote:
		return decideRemoteChange(t.IsFolder(), false, true)
	default:
		return ActionForget
	}
}

func decideLocalChange(isFolder, local, remote bool) ActionType {
	switch {
	case local && isFolder && remote:
		return ActionRecord
	case local && isFolder:
		return ActionCreateRemoteFolder
	case local:
		return ActionUpload
	case remote:
		return ActionDeleteRemote
	default:
		return ActionForget
	}
}

func decideRemoteChange(isFolder, local, remote bool) ActionType {
	switch {
	case remote && isFolder && local:
		return ActionRecord
	case remote && isFolder:
		return ActionCreateLocalFolder
	case remote:
		return ActionDownload
	case local:
		return ActionDeleteLocal
	default:
		return ActionForget
	}
}

// Executor is the ActionExecutor that moves content between the local tree
// and the remote repository and keeps the tracking database in step. It is
// safe for concurrent use.
type Executor struct {
	ledger   Ledger
	nowFunc  func() time.Time
	hashFunc func(string) (string, error)
	logger   *slog.Logger
}

// NewExecutor creates an executor that records results in ledger.
func NewExecutor(ledger Ledger, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Executor{
		ledger:   ledger,
		nowFunc:  time.Now,
		hashFunc: FileChecksum,
		logger:   logger,
	}
}

// Execute decides and performs the action for req.Triplet. Folder deletions
// are deferred during the bulk phase without side effects.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	if req.Folder == nil {
		req.Folder = &SyncFolder{}
	}

	t := req.Triplet
	action := DecideAction(t)

	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.Debug("executor: decided", slog.String("action", string(action)), slog.String("triplet", t.Info()))
	}

	if action == ActionNone {
		return Outcome{Kind: OutcomeSucceeded, Action: action, Triplet: t}
	}

	if IsFolderDeletion(action, t.IsFolder()) && req.Phase == PhaseBulk {
		return Outcome{Kind: OutcomeDeferred, Action: action, Triplet: t}
	}

	if req.Folder.DryRun {
		e.logger.Info("executor: dry run", slog.String("name", t.Name), slog.String("action", string(action)))
		return Outcome{Kind: OutcomeSucceeded, Action: action, Triplet: t}
	}

	if err := ctx.Err(); err != nil {
		return e.failed(t, action, err)
	}

	var o Outcome

	switch action {
	case ActionUpload:
		o = e.executeUpload(ctx, req)
	case ActionDownload:
		o = e.executeDownload(ctx, req)
	case ActionCreateRemoteFolder:
		o = e.executeCreateRemoteFolder(ctx, req)
	case ActionCreateLocalFolder:
		o = e.executeCreateLocalFolder(ctx, req)
	case ActionRecord:
		o = e.executeRecord(ctx, req)
	case ActionDeleteLocal:
		o = e.executeLocalDelete(ctx, req)
	case ActionDeleteRemote:
		o = e.executeRemoteDelete(ctx, req)
	case ActionForget:
		o = e.executeForget(ctx, req)
	case ActionConflict:
		o = e.executeConflict(ctx, req)
	default:
		o = e.failed(t, action, fmt.Errorf("sync: unknown action %q", action))
	}

	if o.Kind == OutcomeSucceeded {
		e.logger.Info("executor: done", slog.String("name", t.Name), slog.String("action", string(o.Action)))
	}

	return o
}

// executeRecord records a folder that exists on both sides.
func (e *Executor) executeRecord(ctx context.Context, req Request) Outcome {
	t := req.Triplet

	item := &TrackedItem{
		Name:           t.Name,
		IsFolder:       t.IsFolder(),
		LocalPath:      localRelPath(t),
		RemotePath:     remotePath(t),
		ServerModified: t.Remote.LastModified,
	}

	return e.recorded(ctx, t, ActionRecord, item)
}

// executeForget drops the tracking record of an item gone from both sides.
func (e *Executor) executeForget(ctx context.Context, req Request) Outcome {
	return e.forgotten(ctx, req.Triplet, ActionForget)
}

// recorded upserts item and turns the result into an outcome.
func (e *Executor) recorded(ctx context.Context, t *Triplet, action ActionType, item *TrackedItem) Outcome {
	if err := e.ledger.Upsert(ctx, item); err != nil {
		return e.failed(t, action, err)
	}

	return Outcome{Kind: OutcomeSucceeded, Action: action, Triplet: t}
}

// forgotten removes the record of a deleted item.
func (e *Executor) forgotten(ctx context.Context, t *Triplet, action ActionType) Outcome {
	if err := e.ledger.Delete(ctx, t.Name); err != nil {
		return e.failed(t, action, err)
	}

	return Outcome{Kind: OutcomeSucceeded, Action: action, Triplet: t}
}

func (e *Executor) failed(t *Triplet, action ActionType, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Action: action, Triplet: t, Err: fmt.Errorf("%s %s: %w", action, t.Name, err)}
}

// localRelPath is the local path of t: the crawled spelling when it exists
// locally, its name otherwise.
func localRelPath(t *Triplet) string {
	if t.Local != nil {
		return t.Local.RelativePath
	}

	if t.DB != nil && t.DB.LocalPath != nil {
		return *t.DB.LocalPath
	}

	return t.Name
}

// remotePath is the remote path of t, chosen like localRelPath.
func remotePath(t *Triplet) string {
	if t.Remote != nil {
		return t.Remote.RelativePath
	}

	if t.DB != nil && t.DB.RemotePath != nil {
		return *t.DB.RemotePath
	}

	return t.Name
}

// localAbsPath maps t onto the local filesystem of folder.
func localAbsPath(folder *SyncFolder, t *Triplet) string {
	return filepath.Join(folder.LocalRoot, filepath.FromSlash(localRelPath(t)))
}
