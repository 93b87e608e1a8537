// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coredrive.io/core/internal/memory"
	"coredrive.io/core/internal/sync2"
	"coredrive.io/core/pkg/apipipeline"
	"coredrive.io/core/pkg/cache"
	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/directread"
	"coredrive.io/core/pkg/eventstream"
	"coredrive.io/core/pkg/fsadapter"
	"coredrive.io/core/pkg/hostcallback"
	"coredrive.io/core/pkg/httptransport"
	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/session"
	synctree "coredrive.io/core/pkg/sync"
	"coredrive.io/core/pkg/transfer"
)

var (
	stateDir   string
	email      string
	password   string
	syncSpec   string
	streamSpec string
)

// uploadMemoryBudget bounds how many chunks EncryptChunks may buffer in
// memory concurrently; memory.Size parses human-readable flag values like
// "64MB".
var uploadMemoryBudget = memory.Size(32 * memory.MiB)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the core engine's driver loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	daemonCmd.Flags().StringVar(&stateDir, "state-dir", "", "directory for the state and transfer caches (default: a temp dir)")
	daemonCmd.Flags().StringVar(&email, "email", "", "account email; with --password, logs in and fetches the tree")
	daemonCmd.Flags().StringVar(&password, "password", "", "account password (prefer the COREDRIVE_PASSWORD env var)")
	daemonCmd.Flags().StringVar(&syncSpec, "sync", "", "sync pair as <local-path>=<remote-handle>")
	daemonCmd.Flags().StringVar(&streamSpec, "stream", "", "stream a byte range as <handle>:<offset>:<length>")
	daemonCmd.Flags().Var(&uploadMemoryBudget, "upload-memory-budget", "memory budget for concurrent chunk encryption, e.g. 64MB")
	rootCmd.AddCommand(daemonCmd)
}

// driver bundles the process-wide singletons: one HTTP client, one
// filesystem adapter, one persistence adapter, held by the driver and
// never touched directly by workers. All core state mutates on the
// driver's tick; the event loop goroutine only hands decoded long-poll
// responses back through a channel.
type driver struct {
	log *zap.Logger

	transport *httptransport.Client
	pipeline  *apipipeline.Pipeline
	session   *session.Session

	transfers *transfer.Engine
	slots     map[string]*transfer.Slot
	localTree *synctree.Tree

	fs         fsadapter.Adapter
	stateStore *cache.BoltStore
	xferStore  *cache.BoltStore

	callback hostcallback.Callback

	events chan eventstream.Response

	// fsEvents carries filesystem notifications into the driver loop;
	// completions carries core-state mutations back from worker
	// goroutines, keeping all mutation on the driver.
	fsEvents    chan fsadapter.Event
	completions chan func()

	sync   *syncPair
	stream *streamRequest

	downloads map[string]*downloadJob
	uploads   map[string]*uploadJob

	reads     *directread.Manager
	ioLimiter *sync2.Limiter

	debrisFolder  nodegraph.Handle
	debrisPending bool

	uploadWorkers int
}

func runDaemon(ctx context.Context) error {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}

	dir := stateDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "coredrive-state-*")
		if err != nil {
			return err
		}
		dir = tmp
		defer os.RemoveAll(dir)
	}

	stateStore, err := cache.Open(filepath.Join(dir, "state.db"), "state")
	if err != nil {
		return err
	}
	defer stateStore.Close()
	xferStore, err := cache.Open(filepath.Join(dir, "transfers.db"), "transfers")
	if err != nil {
		return err
	}
	defer xferStore.Close()

	ep := httptransport.Endpoint{Host: apiHost}
	transport := httptransport.New(ep, log)
	pipeline := apipipeline.New(transport)
	callback := hostcallback.NoOp{}

	d := &driver{
		log:           log,
		transport:     transport,
		pipeline:      pipeline,
		session:       session.New(pipeline, cryptoadapter.Default{}, callback, log),
		transfers:     transfer.NewEngine(),
		slots:         make(map[string]*transfer.Slot),
		localTree:     synctree.NewTree(),
		fs:            fsadapter.Default{},
		stateStore:    stateStore,
		xferStore:     xferStore,
		callback:      callback,
		events:        make(chan eventstream.Response, 1),
		fsEvents:      make(chan fsadapter.Event, 64),
		completions:   make(chan func(), 64),
		downloads:     make(map[string]*downloadJob),
		uploads:       make(map[string]*uploadJob),
		reads:         directread.NewManager(),
		ioLimiter:     sync2.NewLimiter(4),
		uploadWorkers: transfer.MaxWorkersForBudget(uploadMemoryBudget.Int64()),
	}

	if syncSpec != "" {
		pair, err := parseSyncSpec(syncSpec)
		if err != nil {
			return err
		}
		d.sync = pair
	}
	if streamSpec != "" {
		req, err := parseStreamSpec(streamSpec)
		if err != nil {
			return err
		}
		d.stream = req
	}

	log.Info("driver starting",
		zap.String("host", apiHost),
		zap.String("state-dir", dir),
		zap.Stringer("upload-memory-budget", uploadMemoryBudget),
		zap.Int("upload-workers", d.uploadWorkers))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d.sync != nil {
		unwatch, err := d.fs.Watch(ctx, d.sync.localRoot, d.fsEvents)
		if err != nil {
			return err
		}
		defer unwatch()
	}

	if email != "" {
		pw := password
		if pw == "" {
			pw = os.Getenv("COREDRIVE_PASSWORD")
		}
		d.session.Login(email, pw)
	}

	go d.eventLoop(ctx)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("driver stopping")
			return nil
		case resp := <-d.events:
			if err := d.session.ApplyEvents(ctx, resp); err != nil {
				log.Warn("event batch failed", zap.Error(err))
			}
			if d.sync != nil {
				d.sync.dirty = true // remote state moved: reconcile again
			}
		case ev := <-d.fsEvents:
			d.onFSEvent(time.Now(), ev)
		case fn := <-d.completions:
			fn()
		case now := <-ticker.C:
			d.tick(ctx, now)
		}
	}
}

// eventLoop long-polls /wsc once the session holds a sequence number,
// handing each decoded response to the driver loop. Network failures back
// off via the poll cadence; a stopped processor ends the loop.
func (d *driver) eventLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if d.session.Events().Stopped() {
			return
		}
		sn := d.session.Events().SN()
		if sn == "" || !d.session.LoggedIn() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		d.transport.SetSessionID(d.session.SessionID())
		body, err := d.transport.LongPoll(ctx, sn)
		if err != nil {
			d.log.Debug("long poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		resp, err := eventstream.ParseResponse(body)
		if err != nil {
			d.log.Debug("malformed event response", zap.Error(err))
			continue
		}
		select {
		case <-ctx.Done():
			return
		case d.events <- resp:
		}
	}
}

// tick runs one iteration of the single-threaded cooperative engine: the
// command pipeline advances, the sync reconciler plans against the current
// graph, admission promotes queued transfers, each newly active transfer
// gets a slot and its grant/worker, and any pending playback range is
// dispatched.
func (d *driver) tick(ctx context.Context, now time.Time) {
	if d.session.LoggedIn() {
		d.transport.SetSessionID(d.session.SessionID())
	}
	if err := d.pipeline.Tick(ctx, now); err != nil {
		d.log.Debug("pipeline tick error", zap.Error(err))
	}
	d.syncTick(ctx, now)
	for _, dir := range []transfer.Direction{transfer.DirectionUpload, transfer.DirectionDownload} {
		outstanding, speed := d.categoryLoad(dir, now)
		if !transfer.CanDispatch(outstanding, speed) {
			continue
		}
		for _, t := range d.transfers.Dispatch(dir, now) {
			d.slots[t.ID] = transfer.NewSlot(t, transfer.ConnectionsFor(dir))
			d.callback.TransferAdded(t.ID)
		}
	}
	d.serviceTransfers(ctx)
	d.serviceStream(ctx)
}

// categoryLoad sums outstanding bytes and observed speed across all slots
// of one direction, the dispatcher's admission signal.
func (d *driver) categoryLoad(dir transfer.Direction, now time.Time) (outstanding, speed int64) {
	for _, s := range d.slots {
		if s.Transfer.Direction != dir {
			continue
		}
		outstanding += s.InFlightBytes()
		speed += s.Speed(now)
	}
	return outstanding, speed
}
