package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

type Mode string

const (
	ModePublic   Mode = "public"
	ModeOperator Mode = "operator"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePublic, ModeOperator:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

var (
	ErrSelectionDisabled = errors.New("selection is only available in operator mode")
	ErrUnknownLift       = errors.New("unknown lift")
	ErrViewClosed        = errors.New("view closed")
)

// LiftSource is the metadata backend.
type LiftSource interface {
	PublicLifts(ctx context.Context) ([]model.Lift, error)
	OperatorLifts(ctx context.Context, operatorID string) ([]model.Lift, error)
	Logs(ctx context.Context) ([]model.LogRecord, error)
}

// LiftCache holds the last good lift list.
type LiftCache interface {
	Load(ctx context.Context, key string) ([]model.Lift, error)
	Store(ctx context.Context, key string, lifts []model.Lift) error
}

type ViewConfig struct {
	Mode       Mode
	OperatorID string

	Transport rabbitmq.Transport
	Source    LiftSource
	Cache     LiftCache // optional
	Canvas    Canvas
	Identity  Identity

	Logger  *zap.Logger
	Metrics *Metrics

	// SelectTimeout bounds a selection change, broker round trips included.
	// Defaults to DefaultSelectTimeout.
	SelectTimeout time.Duration
}

const DefaultSelectTimeout = 10 * time.Second

// OverviewEntry is one lift of the map overview. State and Visual are nil until the
// first broadcast for the lift has been received.
type OverviewEntry struct {
	Lift   model.Lift `json:"lift"`
	State  *LiftState `json:"state,omitempty"`
	Visual *Visual    `json:"visual,omitempty"`
}

// View wires the read path and the command path of one monitor. Run owns every piece
// of mutable state; the other methods reach it through the loop.
type View struct {
	mode       Mode
	operatorID string
	source     LiftSource
	cache      LiftCache
	logger     *zap.Logger
	metrics    *Metrics
	selectWait time.Duration

	proj     *Projector
	layers   *MapLayerManager
	subs     *SubscriptionManager
	commands *CommandPublisher

	lifts map[string]model.Lift
	order []string

	requests chan func()
	started  chan struct{}
	stopped  chan struct{}
}

func NewView(cfg ViewConfig) *View {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePublic
	}
	if cfg.Canvas == nil {
		cfg.Canvas = NewMemoryCanvas()
	}
	if cfg.Identity == nil {
		cfg.Identity = StaticIdentity(cfg.OperatorID)
	}
	if cfg.SelectTimeout <= 0 {
		cfg.SelectTimeout = DefaultSelectTimeout
	}
	v := &View{
		mode:       cfg.Mode,
		operatorID: cfg.OperatorID,
		source:     cfg.Source,
		cache:      cfg.Cache,
		logger:     logger.With(zap.String("mode", string(cfg.Mode))),
		metrics:    cfg.Metrics,
		selectWait: cfg.SelectTimeout,
		proj:       NewProjector(),
		layers:     NewMapLayerManager(cfg.Canvas),
		commands:   NewCommandPublisher(cfg.Transport, cfg.Identity, logger, cfg.Metrics),
		lifts:      make(map[string]model.Lift),
		requests:   make(chan func()),
		started:    make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	v.subs = NewSubscriptionManager(cfg.Transport, v.logger, cfg.Metrics, v.proj.Reset)
	return v
}

func (v *View) Mode() Mode { return v.mode }

// Started is closed once the view has loaded its lifts and opened the overview stream.
func (v *View) Started() <-chan struct{} { return v.started }

// Run activates the view and processes frames and requests until ctx is done. On
// return every subscription is released and every map layer removed.
func (v *View) Run(ctx context.Context) error {
	defer close(v.stopped)

	lifts, err := v.load(ctx, false)
	if err != nil {
		v.logger.Error("initial lift load failed", zap.Error(err))
	}
	if lifts != nil {
		v.setLifts(lifts)
	}
	if err := v.subs.ActivateOverview(ctx); err != nil {
		v.subs.Close(context.Background())
		return err
	}
	close(v.started)
	v.logger.Info("view active", zap.Int("lifts", len(v.order)))

	defer v.teardown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-v.subs.Inbox():
			v.handle(in)
		case fn := <-v.requests:
			fn()
		}
	}
}

func (v *View) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v.subs.Close(ctx)
	v.layers.Clear()
	v.logger.Info("view torn down")
}

// do runs fn on the loop and waits for it.
func (v *View) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case v.requests <- func() { fn(); close(done) }:
	case <-v.stopped:
		return ErrViewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (v *View) handle(in Inbound) {
	ev, err := Decode(in.Frame)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			v.metrics.DecodeFailure(de.Class)
		}
		v.logger.Warn("dropping undecodable frame", zap.String("topic", in.Frame.Topic), zap.Error(err))
		return
	}
	meta := ev.Metadata()
	v.metrics.Frame(string(meta.Channel))

	if in.Overview {
		st, ok := ev.(StatusEvent)
		if !ok {
			v.logger.Debug("unexpected overview payload", zap.String("topic", meta.Topic))
			return
		}
		v.proj.ApplyOverview(st)
		v.redraw(st.LiftID)
		return
	}

	if !v.subs.Live(in.Generation) {
		v.metrics.StaleFrame()
		v.logger.Debug("frame for retired selection", zap.String("topic", meta.Topic), zap.Uint64("generation", in.Generation))
		return
	}
	if !v.proj.Apply(ev) {
		v.logger.Debug("frame not applied", zap.String("topic", meta.Topic), zap.String("lift_id", meta.LiftID))
	}
}

func (v *View) redraw(liftID string) {
	lift, ok := v.lifts[liftID]
	if !ok {
		return
	}
	if st, ok := v.proj.Current(liftID); ok {
		v.layers.Draw(lift, Derive(st))
	}
}

// setLifts replaces the lift list wholesale and brings the map in line with it.
func (v *View) setLifts(lifts []model.Lift) {
	next := make(map[string]model.Lift, len(lifts))
	order := make([]string, 0, len(lifts))
	for _, l := range lifts {
		if l.ID == "" {
			continue
		}
		if _, dup := next[l.ID]; !dup {
			order = append(order, l.ID)
		}
		next[l.ID] = l
	}
	for id := range v.lifts {
		if _, ok := next[id]; !ok {
			v.layers.Remove(id)
		}
	}
	v.lifts, v.order = next, order
	for _, id := range order {
		v.redraw(id)
	}
	if sel := v.subs.State(); sel.LiftID != "" {
		if _, ok := next[sel.LiftID]; !ok {
			v.subs.Clear(context.Background())
		}
	}
}

func (v *View) cacheKey() string {
	if v.mode == ModeOperator {
		return "operator:" + v.operatorID
	}
	return "public"
}

func (v *View) fetch(ctx context.Context) ([]model.Lift, error) {
	if v.mode == ModeOperator {
		return v.source.OperatorLifts(ctx, v.operatorID)
	}
	return v.source.PublicLifts(ctx)
}

// load fetches the lift list. On failure it falls back to the cache, but only when
// nothing is loaded yet; the fetch error is returned either way.
func (v *View) load(ctx context.Context, haveLifts bool) ([]model.Lift, error) {
	lifts, err := v.fetch(ctx)
	if err == nil {
		if v.cache != nil {
			if cerr := v.cache.Store(ctx, v.cacheKey(), lifts); cerr != nil {
				v.logger.Warn("lift cache store failed", zap.Error(cerr))
			}
		}
		return lifts, nil
	}

	v.metrics.MetadataError("lifts")
	err = fmt.Errorf("fetch lifts: %w", err)
	if haveLifts || v.cache == nil {
		return nil, err
	}
	cached, cerr := v.cache.Load(ctx, v.cacheKey())
	if cerr != nil {
		return nil, err
	}
	v.logger.Warn("using cached lifts", zap.Int("lifts", len(cached)), zap.Error(err))
	return cached, err
}

// Refresh reloads the lift list. A failed fetch leaves the current lifts untouched.
func (v *View) Refresh(ctx context.Context) error {
	var have bool
	if err := v.do(ctx, func() { have = len(v.lifts) > 0 }); err != nil {
		return err
	}
	lifts, err := v.load(ctx, have)
	if lifts != nil {
		if derr := v.do(ctx, func() { v.setLifts(lifts) }); derr != nil {
			return derr
		}
	}
	if err != nil {
		v.logger.Error("lift refresh failed", zap.Error(err))
	}
	return err
}

func (v *View) Lifts(ctx context.Context) ([]model.Lift, error) {
	var out []model.Lift
	err := v.do(ctx, func() {
		out = make([]model.Lift, 0, len(v.order))
		for _, id := range v.order {
			out = append(out, v.lifts[id])
		}
	})
	return out, err
}

func (v *View) Overview(ctx context.Context) ([]OverviewEntry, error) {
	var out []OverviewEntry
	err := v.do(ctx, func() {
		out = make([]OverviewEntry, 0, len(v.order))
		for _, id := range v.order {
			e := OverviewEntry{Lift: v.lifts[id]}
			if st, ok := v.proj.Current(id); ok {
				vis := Derive(st)
				e.State, e.Visual = &st, &vis
			}
			out = append(out, e)
		}
	})
	return out, err
}

// Broadcasts returns the overview history, newest first.
func (v *View) Broadcasts(ctx context.Context) ([]StatusEvent, error) {
	var out []StatusEvent
	err := v.do(ctx, func() { out = v.proj.Overview() })
	return out, err
}

func (v *View) Selection(ctx context.Context) (SelectionState, error) {
	var st SelectionState
	err := v.do(ctx, func() { st = v.subs.State() })
	return st, err
}

// Select toggles the selection; see SubscriptionManager.Select. The broker work runs
// on the loop, so it is cut off after the select timeout whatever ctx allows.
func (v *View) Select(ctx context.Context, liftID string) (SelectionState, error) {
	if v.mode != ModeOperator {
		return SelectionState{}, ErrSelectionDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, v.selectWait)
	defer cancel()
	var (
		st  SelectionState
		err error
	)
	if derr := v.do(ctx, func() {
		if _, ok := v.lifts[liftID]; liftID != "" && !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownLift, liftID)
			st = v.subs.State()
			return
		}
		st, err = v.subs.Select(ctx, liftID)
	}); derr != nil {
		return SelectionState{}, derr
	}
	return st, err
}

// Logs returns the live table data of the selected lift.
func (v *View) Logs(ctx context.Context) (SelectionLogs, error) {
	var out SelectionLogs
	err := v.do(ctx, func() { out = v.proj.Logs() })
	return out, err
}

// History returns stored log records from the metadata backend, newest first. With a
// lift selected only that lift's records are returned.
func (v *View) History(ctx context.Context) ([]model.LogRecord, error) {
	if v.mode != ModeOperator {
		return nil, ErrSelectionDisabled
	}
	var selected string
	if err := v.do(ctx, func() { selected = v.subs.State().LiftID }); err != nil {
		return nil, err
	}
	recs, err := v.source.Logs(ctx)
	if err != nil {
		v.metrics.MetadataError("logs")
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	out := make([]model.LogRecord, 0, len(recs))
	for _, r := range recs {
		if selected == "" || r.LiftID == selected {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	return out, nil
}

func (v *View) checkCommand(ctx context.Context, liftID string) error {
	if v.mode != ModeOperator {
		return ErrSelectionDisabled
	}
	var known bool
	if err := v.do(ctx, func() { _, known = v.lifts[liftID] }); err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownLift, liftID)
	}
	return nil
}

func (v *View) SendEmergencyStop(ctx context.Context, liftID, message string, abortTime int) (messages.Command, error) {
	if err := v.checkCommand(ctx, liftID); err != nil {
		return messages.Command{}, err
	}
	return v.commands.EmergencyStop(ctx, liftID, message, abortTime)
}

func (v *View) SendSuggestion(ctx context.Context, liftID, severity, message string) (messages.Command, error) {
	if err := v.checkCommand(ctx, liftID); err != nil {
		return messages.Command{}, err
	}
	return v.commands.Suggest(ctx, liftID, severity, message)
}
