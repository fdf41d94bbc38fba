package mobile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tradelog/pkg/docstore"
	"tradelog/pkg/tradelog"
)

// remoteTimeout bounds calls that reach the remote store.
const remoteTimeout = 15 * time.Second

// EventListener receives journal events as JSON. Implemented on the
// native side of the binding.
type EventListener interface {
	OnEvent(eventJSON string)
}

// Core wraps the trading journal for gomobile bindings. Only binding-safe
// types cross this boundary: strings, numbers, bools and errors.
type Core struct {
	journal *tradelog.Journal

	mu          sync.Mutex
	unsubscribe tradelog.Unsubscribe
	dispatch    *dispatcher
}

// Open initializes a local-only journal stored at dbPath.
func Open(dbPath string) (*Core, error) {
	return open(dbPath, nil, "")
}

// OpenWithRemote initializes a journal synced with the document API at
// remoteURL. An empty userID leaves the user signed out until SignIn.
func OpenWithRemote(dbPath, remoteURL, token, userID string) (*Core, error) {
	client, err := docstore.New(docstore.Options{BaseURL: remoteURL, Token: token})
	if err != nil {
		return nil, err
	}
	return open(dbPath, client, userID)
}

func open(dbPath string, remote tradelog.RemoteStore, userID string) (*Core, error) {
	auth := tradelog.NewAuth()
	if userID != "" {
		auth.SignIn(userID)
	} else {
		auth.SignOut()
	}
	journal, err := tradelog.Open(tradelog.Options{DBPath: dbPath, Remote: remote, Auth: auth})
	if err != nil {
		return nil, err
	}
	return &Core{journal: journal}, nil
}

// Close releases resources.
func (c *Core) Close() error {
	if c == nil || c.journal == nil {
		return nil
	}
	c.SetListener(nil)
	return c.journal.Close()
}

// SetListener replaces the event listener; nil removes it. Events reach the
// listener in order on a goroutine of their own, so the listener may call
// back into Core.
func (c *Core) SetListener(listener EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.dispatch != nil {
		c.dispatch.stop()
		c.dispatch = nil
	}
	if listener == nil {
		return
	}
	d := newDispatcher(listener)
	c.dispatch = d
	c.unsubscribe = c.journal.Subscribe(func(ev tradelog.Event) {
		data, err := marshalJSON(ev)
		if err != nil {
			return
		}
		d.push(data)
	})
}

// dispatcher queues events for one listener. Journal callbacks can run on a
// remote feed's reader goroutine, which must not block on the listener.
type dispatcher struct {
	listener EventListener
	wake     chan struct{}

	mu      sync.Mutex
	queue   []string
	stopped bool
}

func newDispatcher(listener EventListener) *dispatcher {
	d := &dispatcher{listener: listener, wake: make(chan struct{}, 1)}
	go d.run()
	return d
}

func (d *dispatcher) push(eventJSON string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, eventJSON)
	d.mu.Unlock()
	d.signal()
}

// stop drops queued events; a delivery already in progress completes.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.queue = nil
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for range d.wake {
		for {
			d.mu.Lock()
			if d.stopped {
				d.mu.Unlock()
				return
			}
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			next := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			d.listener.OnEvent(next)
		}
	}
}

// LoadDayJSON selects date and returns its record as JSON.
func (c *Core) LoadDayJSON(date string) (string, error) {
	rec, err := c.journal.LoadForDate(date)
	if err != nil {
		return "", err
	}
	return marshalJSON(dayPayload{Date: date, Record: rec})
}

// CurrentDayJSON returns the selected date and its record as JSON.
func (c *Core) CurrentDayJSON() (string, error) {
	date, rec := c.journal.Current()
	return marshalJSON(dayPayload{Date: date, Record: rec})
}

// LoadRemoteDayJSON refreshes date from the remote store.
func (c *Core) LoadRemoteDayJSON(date string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	rec, err := c.journal.LoadRemoteForDate(ctx, date)
	if err != nil {
		return "", err
	}
	return marshalJSON(dayPayload{Date: date, Record: rec})
}

// AddEntry appends a TP or SL entry to the selected date and returns the
// entry as JSON.
func (c *Core) AddEntry(kind string, value float64, asset string) (string, error) {
	k, err := tradelog.ParseKind(kind)
	if err != nil {
		return "", err
	}
	entry, err := c.journal.AddEntry(k, value, asset)
	if err != nil {
		return "", err
	}
	return marshalJSON(entry)
}

// EditEntry updates an entry in place and returns the record as JSON.
func (c *Core) EditEntry(kind string, id int64, value float64, asset string) (string, error) {
	k, err := tradelog.ParseKind(kind)
	if err != nil {
		return "", err
	}
	return c.recordJSON(c.journal.EditEntry(k, id, value, asset))
}

// DeleteEntry removes an entry and returns the record as JSON.
func (c *Core) DeleteEntry(kind string, id int64) (string, error) {
	k, err := tradelog.ParseKind(kind)
	if err != nil {
		return "", err
	}
	return c.recordJSON(c.journal.DeleteEntry(k, id))
}

// ClearList empties one list of the selected date.
func (c *Core) ClearList(kind string) (string, error) {
	k, err := tradelog.ParseKind(kind)
	if err != nil {
		return "", err
	}
	return c.recordJSON(c.journal.ClearList(k))
}

// ClearDay empties both lists of the selected date.
func (c *Core) ClearDay() (string, error) {
	return c.recordJSON(c.journal.ClearAllForDate())
}

// ClearAll wipes the local cache and ledger, and the remote documents when
// signed in.
func (c *Core) ClearAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	return c.journal.ClearAllGlobal(ctx)
}

// WeeklySummaryJSON aggregates weeks weeks ending with the week of date.
func (c *Core) WeeklySummaryJSON(date string, weeks int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	data, err := c.journal.WeeklySummary(ctx, date, weeks)
	if err != nil {
		return "", err
	}
	if data == nil {
		data = []tradelog.PeriodSummary{}
	}
	return marshalJSON(data)
}

// MonthlySummaryJSON aggregates the month of date.
func (c *Core) MonthlySummaryJSON(date string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	data, err := c.journal.MonthlySummary(ctx, date)
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// SetSummaryVisible toggles background summary generation.
func (c *Core) SetSummaryVisible(visible bool) {
	c.journal.SetSummaryVisible(visible)
}

// LedgerJSON returns the capital ledger as JSON.
func (c *Core) LedgerJSON() (string, error) {
	return marshalJSON(c.journal.Ledger())
}

// SyncStatusJSON returns the sync indicator as JSON.
func (c *Core) SyncStatusJSON() (string, error) {
	return marshalJSON(c.journal.SyncStatus())
}

// MigrateJSON uploads local records the remote store lacks.
func (c *Core) MigrateJSON() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	result, err := c.journal.MigrateLocalToRemote(ctx)
	if err != nil {
		return "", err
	}
	return marshalJSON(result)
}

// SignIn records the user id supplied by the native identity provider.
func (c *Core) SignIn(userID string) {
	c.journal.Auth().SignIn(userID)
}

// SignOut drops the user id.
func (c *Core) SignOut() {
	c.journal.Auth().SignOut()
}

// Theme returns "light" or "dark".
func (c *Core) Theme() string {
	return c.journal.Theme()
}

// SetTheme persists the UI theme.
func (c *Core) SetTheme(theme string) error {
	return c.journal.SetTheme(theme)
}

// Wait blocks until background remote saves finish.
func (c *Core) Wait() {
	c.journal.Wait()
}

func (c *Core) recordJSON(rec tradelog.Record, err error) (string, error) {
	if err != nil {
		return "", err
	}
	date, _ := c.journal.Current()
	return marshalJSON(dayPayload{Date: date, Record: rec})
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type dayPayload struct {
	Date   string          `json:"date"`
	Record tradelog.Record `json:"record"`
}
