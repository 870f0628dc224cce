package player

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// PrefetchMargin is the distance to the end of loaded content, in
	// logical pixels, under which the next page is requested.
	PrefetchMargin = 500
	// PageSize is used for the first page and every prefetch.
	PageSize = 10

	eventBuffer = 64
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("player: controller stopped")

type Video struct {
	ID        int64     `json:"id"`
	FileID    string    `json:"file_id"`
	Caption   *string   `json:"caption"`
	MessageID int64     `json:"message_id"`
	PostedAt  time.Time `json:"posted_at"`
}

type Page struct {
	Videos     []Video
	NextCursor *int64
}

type Pager interface {
	Page(ctx context.Context, cursor *int64, limit int) (Page, error)
}

type Resolver interface {
	Resolve(ctx context.Context, fileID string) (string, error)
}

// Observer receives the controller's decisions. Methods run on the
// controller loop and must not block or call back into the Controller
// synchronously.
type Observer interface {
	Appended(videos []Video)
	// Play is only ever called for the active slot once its URL is known.
	Play(slot SlotID, url string)
	Pause(slot SlotID)
	// SlotFailed is terminal for the slot until it is remounted.
	SlotFailed(slot SlotID, err error)
	PageFailed(cursor *int64, err error)
}

type SlotState int

const (
	SlotResolving SlotState = iota
	SlotReady
	SlotFailed
	SlotUnmounted
)

func (s SlotState) String() string {
	switch s {
	case SlotResolving:
		return "resolving"
	case SlotReady:
		return "ready"
	case SlotFailed:
		return "failed"
	case SlotUnmounted:
		return "unmounted"
	default:
		return "unknown"
	}
}

type slot struct {
	video Video
	state SlotState
	url   string
	// mount changes on every unmount/remount; resolutions carrying an older
	// value are dropped.
	mount  uint64
	cancel context.CancelFunc
}

// State is a point-in-time copy of the controller's state.
type State struct {
	Videos     []Video
	Slots      map[SlotID]SlotState
	Active     SlotID
	HasActive  bool
	NextCursor *int64
	// Loaded is false until the first page has arrived.
	Loaded   bool
	Fetching bool
}

// Controller is the feed's single-threaded state machine. All state is owned
// by the goroutine running Run; public methods only enqueue events.
type Controller struct {
	pager    Pager
	resolver Resolver
	obs      Observer
	log      *zap.Logger

	events chan func()
	done   chan struct{}

	ctx        context.Context
	act        *Activation
	slots      map[SlotID]*slot
	order      []SlotID
	nextCursor *int64
	loaded     bool
	// inflight is keyed by cursor; 0 stands for the first page.
	inflight map[int64]bool
	mounts   uint64
}

func NewController(pager Pager, resolver Resolver, obs Observer, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		pager:    pager,
		resolver: resolver,
		obs:      obs,
		log:      log,
		events:   make(chan func(), eventBuffer),
		done:     make(chan struct{}),
		act:      NewActivation(),
		slots:    make(map[SlotID]*slot),
		inflight: make(map[int64]bool),
	}
}

// Run loads the first page and processes events until ctx is cancelled.
// Pending fetches and resolutions are cancelled with ctx.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.ctx = ctx
	c.fetch(nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Visibility reports the visible fraction of a slot.
func (c *Controller) Visibility(id SlotID, fraction float64) {
	c.post(func() { c.onVisibility(id, fraction) })
}

// Scrolled reports the distance between the viewport and the end of loaded
// content.
func (c *Controller) Scrolled(distanceToEnd float64) {
	c.post(func() { c.onScrolled(distanceToEnd) })
}

// Unmount evicts a slot. An in-flight resolution for it is cancelled and its
// result discarded.
func (c *Controller) Unmount(id SlotID) {
	c.post(func() { c.onUnmount(id) })
}

// Remount mounts an evicted slot again and resolves its URL afresh. This is
// the only way a failed slot is retried.
func (c *Controller) Remount(id SlotID) {
	c.post(func() { c.onRemount(id) })
}

// Snapshot returns a copy of the current state once every event posted
// before it has been processed.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	out := make(chan State, 1)
	if !c.post(func() { out <- c.snapshot() }) {
		return State{}, ErrStopped
	}
	select {
	case s := <-out:
		return s, nil
	case <-c.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (c *Controller) onVisibility(id SlotID, fraction float64) {
	s, ok := c.slots[id]
	if !ok || s.state == SlotUnmounted {
		return
	}
	change, changed := c.act.Observe(id, fraction)
	if !changed {
		return
	}
	if change.HadPrevious {
		c.obs.Pause(change.Deactivated)
	}
	if s.state == SlotReady {
		c.obs.Play(id, s.url)
	}
}

func (c *Controller) onScrolled(distance float64) {
	if distance >= PrefetchMargin {
		return
	}
	switch {
	case !c.loaded:
		// The first page failed; a scroll is the user asking again.
		c.fetch(nil)
	case c.nextCursor != nil:
		c.fetch(c.nextCursor)
	}
}

func (c *Controller) onUnmount(id SlotID) {
	s, ok := c.slots[id]
	if !ok || s.state == SlotUnmounted {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state, s.url = SlotUnmounted, ""
	c.mounts++
	s.mount = c.mounts
	if c.act.Remove(id) {
		c.obs.Pause(id)
	}
}

func (c *Controller) onRemount(id SlotID) {
	s, ok := c.slots[id]
	if !ok || s.state != SlotUnmounted {
		return
	}
	c.mountSlot(s)
}

func cursorKey(cursor *int64) int64 {
	if cursor == nil {
		return 0
	}
	return *cursor
}

// fetch starts a page request unless one for the same cursor is in flight.
func (c *Controller) fetch(cursor *int64) {
	key := cursorKey(cursor)
	if c.inflight[key] {
		return
	}
	c.inflight[key] = true

	var arg *int64
	if cursor != nil {
		v := *cursor
		arg = &v
	}
	go func() {
		page, err := c.pager.Page(c.ctx, arg, PageSize)
		c.post(func() { c.onPage(arg, page, err) })
	}()
}

func (c *Controller) onPage(cursor *int64, page Page, err error) {
	delete(c.inflight, cursorKey(cursor))
	if err != nil {
		if c.ctx.Err() == nil {
			c.log.Warn("feed page failed", zap.Int64("cursor", cursorKey(cursor)), zap.Error(err))
			c.obs.PageFailed(cursor, err)
		}
		return
	}
	// Only the page for the cursor we are waiting on extends the list.
	if c.loaded && cursorKey(cursor) != cursorKey(c.nextCursor) {
		return
	}

	fresh := make([]Video, 0, len(page.Videos))
	for _, v := range page.Videos {
		if _, dup := c.slots[SlotID(v.ID)]; dup {
			continue
		}
		s := &slot{video: v}
		c.slots[SlotID(v.ID)] = s
		c.order = append(c.order, SlotID(v.ID))
		fresh = append(fresh, v)
	}
	c.loaded = true
	c.nextCursor = page.NextCursor

	if len(fresh) > 0 {
		c.obs.Appended(fresh)
	}
	for _, v := range fresh {
		c.mountSlot(c.slots[SlotID(v.ID)])
	}
}

func (c *Controller) mountSlot(s *slot) {
	c.mounts++
	s.mount = c.mounts
	s.state, s.url = SlotResolving, ""

	ctx, cancel := context.WithCancel(c.ctx)
	s.cancel = cancel
	id, mount, fileID := SlotID(s.video.ID), s.mount, s.video.FileID
	go func() {
		url, err := c.resolver.Resolve(ctx, fileID)
		c.post(func() { c.onResolved(id, mount, url, err) })
	}()
}

func (c *Controller) onResolved(id SlotID, mount uint64, url string, err error) {
	s, ok := c.slots[id]
	if !ok || s.mount != mount || s.state != SlotResolving {
		return
	}
	s.cancel()
	s.cancel = nil

	if err != nil {
		s.state = SlotFailed
		c.log.Warn("video resolution failed", zap.Int64("video_id", int64(id)), zap.Error(err))
		c.obs.SlotFailed(id, err)
		return
	}
	s.state, s.url = SlotReady, url
	if c.act.IsActive(id) {
		c.obs.Play(id, url)
	}
}

func (c *Controller) snapshot() State {
	st := State{
		Videos:   make([]Video, 0, len(c.order)),
		Slots:    make(map[SlotID]SlotState, len(c.slots)),
		Loaded:   c.loaded,
		Fetching: len(c.inflight) > 0,
	}
	for _, id := range c.order {
		s := c.slots[id]
		st.Videos = append(st.Videos, s.video)
		st.Slots[id] = s.state
	}
	st.Active, st.HasActive = c.act.Active()
	if c.nextCursor != nil {
		v := *c.nextCursor
		st.NextCursor = &v
	}
	return st
}
