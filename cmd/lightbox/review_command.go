package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lightbox/internal/deletions"
	"lightbox/internal/ipc"
	"lightbox/internal/items"
	"lightbox/internal/mediastore"
	"lightbox/internal/review"
)

// pollWaitMillis bounds each daemon long-poll so interrupts are noticed.
const pollWaitMillis = 1000

// updateSource yields review updates from the daemon or from an in-process
// session.
type updateSource interface {
	next(ctx context.Context, after uint64) (review.Update, error)
	close()
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var ids []int64
	var mimeType string
	var token string
	var secure bool
	var follow bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "review <id|locator>",
		Short: "Review a captured item together with its siblings",
		Long: `Review a captured item together with the other items from the same capture.

The first argument is either a record id or a media locator. With --ids the
listed items are reviewed instead of the discovered capture group. The command
waits until every item has finished processing and prints the final list;
--follow prints every intermediate update as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			anchor, err := parseAnchor(args[0], mimeType)
			if err != nil {
				return err
			}
			req := ipc.OpenReviewRequest{
				Anchor:      string(anchor),
				ContentType: mimeType,
				Token:       token,
				Secure:      secure,
			}
			if cmd.Flags().Changed("ids") {
				for _, id := range ids {
					if id < 0 {
						return fmt.Errorf("invalid --ids value %d: ids must be zero or more", id)
					}
				}
				req.ExplicitIDs = append([]int64{}, ids...)
			}

			source, err := openReview(cmd.Context(), ctx, req)
			if err != nil {
				return err
			}
			defer source.close()
			return streamReview(cmd, source, follow, jsonOutput)
		},
	}

	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "Review exactly these record ids instead of discovering siblings")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Content type hint for the captured item")
	cmd.Flags().StringVar(&token, "token", "", "Capture action token shown at the head of the list")
	cmd.Flags().BoolVar(&secure, "secure", false, "Use the secure capture token")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Print every update until all items are ready")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of tables")
	return cmd
}

func parseAnchor(arg, mimeType string) (mediastore.Locator, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("an item id or locator is required")
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if id < 0 {
			return "", fmt.Errorf("invalid item id %d", id)
		}
		return mediastore.LocatorFor(id, mimeType), nil
	}
	return mediastore.Locator(arg), nil
}

func openReview(ctx context.Context, cc *commandContext, req ipc.OpenReviewRequest) (updateSource, error) {
	client, err := cc.dial(ctx)
	if err != nil {
		if !ipc.IsDaemonDown(err) {
			return nil, wrapDialError(err, cc.socketPath())
		}
		return openLocalReview(ctx, cc, req)
	}
	resp, err := client.OpenReview(req)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &remoteSource{client: client, sessionID: resp.SessionID}, nil
}

type remoteSource struct {
	client    *ipc.Client
	sessionID string
}

func (r *remoteSource) next(ctx context.Context, after uint64) (review.Update, error) {
	for {
		if err := ctx.Err(); err != nil {
			return review.Update{}, err
		}
		resp, err := r.client.NextSnapshot(ipc.NextSnapshotRequest{
			SessionID:  r.sessionID,
			After:      after,
			WaitMillis: pollWaitMillis,
		})
		if err != nil {
			return review.Update{}, err
		}
		if resp.TimedOut {
			continue
		}
		return review.Update{Seq: resp.Seq, Snapshot: ipc.DecodeSnapshot(resp.Items), Done: resp.Done}, nil
	}
}

func (r *remoteSource) close() {
	_, _ = r.client.CloseReview(r.sessionID)
	_ = r.client.Close()
}

// localSource runs the review pipeline in this process against the store.
type localSource struct {
	store   *mediastore.Store
	service *review.Service
	session *review.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

func openLocalReview(ctx context.Context, cc *commandContext, req ipc.OpenReviewRequest) (updateSource, error) {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := cc.logger()
	store, err := mediastore.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Writes from other processes only reach the readiness watchers through
	// the poller.
	pollCtx, cancel := context.WithCancel(ctx)
	poller := mediastore.NewPoller(store, cfg.StorePollInterval(), logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = poller.Run(pollCtx)
	}()

	service := review.NewFromConfig(cfg, store, deletions.NewTracker(), logger)
	session, err := service.Open(ctx, req.Trigger())
	if err != nil {
		cancel()
		<-done
		service.Close()
		_ = store.Close()
		return nil, err
	}
	return &localSource{store: store, service: service, session: session, cancel: cancel, done: done}, nil
}

func (l *localSource) next(ctx context.Context, after uint64) (review.Update, error) {
	return l.session.Next(ctx, after)
}

func (l *localSource) close() {
	l.session.Close()
	l.service.Close()
	l.cancel()
	<-l.done
	_ = l.store.Close()
}

func streamReview(cmd *cobra.Command, source updateSource, follow, jsonOutput bool) error {
	var (
		after   uint64
		shown   items.Snapshot
		printed bool
	)
	for {
		update, err := source.next(cmd.Context(), after)
		if err != nil {
			return err
		}
		after = update.Seq
		if follow || update.Done {
			var changes []items.Change
			if printed {
				changes = items.Diff(shown, update.Snapshot)
			}
			if err := printUpdate(cmd, update, changes, jsonOutput); err != nil {
				return err
			}
			shown, printed = update.Snapshot, true
		}
		if update.Done {
			return nil
		}
	}
}

func printUpdate(cmd *cobra.Command, update review.Update, changes []items.Change, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, ipc.NextSnapshotResponse{
			Seq:   update.Seq,
			Items: ipc.EncodeSnapshot(update.Snapshot),
			Done:  update.Done,
		})
	}
	out := cmd.OutOrStdout()
	pending := len(update.Snapshot.NotReady())
	if update.Done {
		fmt.Fprintf(out, "Update %d (final, %d processing)\n", update.Seq, pending)
	} else {
		fmt.Fprintf(out, "Update %d (%d processing)\n", update.Seq, pending)
	}
	if len(changes) > 0 {
		fmt.Fprintf(out, "Changes: %s\n", summarizeChanges(changes))
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "Kind", "ID", "State", "Locator"},
		snapshotRows(update.Snapshot),
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

// summarizeChanges counts changes per kind, e.g. "1 inserted, 2 changed".
func summarizeChanges(changes []items.Change) string {
	counts := make(map[items.ChangeKind]int)
	for _, c := range changes {
		counts[c.Kind]++
	}
	var parts []string
	for _, kind := range []items.ChangeKind{items.Inserted, items.Removed, items.Moved, items.Changed} {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, kind))
		}
	}
	return strings.Join(parts, ", ")
}

func snapshotRows(snap items.Snapshot) [][]string {
	rows := make([][]string, 0, snap.Len())
	for i, it := range ipc.EncodeSnapshot(snap) {
		id := strconv.FormatInt(it.ID, 10)
		locator := it.Locator
		if it.Kind == ipc.KindCapture {
			id = "-"
			locator = it.Token
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			kindLabel(it.Kind),
			id,
			stateLabel(it.Ready),
			locator,
		})
	}
	return rows
}
