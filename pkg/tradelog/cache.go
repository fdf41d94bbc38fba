package tradelog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Storage keys.
const (
	journalKeyPrefix = "journal:"
	ledgerKey        = "ledger:capital"
	selectedDateKey  = "settings:selected-date"
	themeKey         = "settings:theme"
)

// LocalCache stores one record per date on top of a KVStore and keeps a
// sorted index of known dates so listing never rescans the key space.
type LocalCache struct {
	store  KVStore
	logger *slog.Logger

	mu    sync.RWMutex
	index []string
}

// NewLocalCache builds the date index with a single prefix scan.
func NewLocalCache(store KVStore, logger *slog.Logger) (*LocalCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	keys, err := store.Keys(journalKeyPrefix)
	if err != nil {
		return nil, err
	}
	c := &LocalCache{store: store, logger: logger}
	for _, key := range keys {
		date := strings.TrimPrefix(key, journalKeyPrefix)
		if !IsValidDate(date) {
			logger.Warn("ignoring malformed journal key", "key", key)
			continue
		}
		c.index = append(c.index, date)
	}
	sort.Strings(c.index)
	return c, nil
}

// Get returns the record stored for date. Corrupt values read as absent.
func (c *LocalCache) Get(date string) (Record, bool) {
	data, ok, err := c.store.Get(journalKeyPrefix + date)
	if err != nil {
		c.logger.Warn("local cache read failed", "date", date, "err", err)
		return Record{}, false
	}
	if !ok {
		return Record{}, false
	}
	rec, err := decodeRecord(data)
	if err != nil {
		c.logger.Warn("discarding corrupt journal record", "date", date, "err", err)
		return Record{}, false
	}
	return rec, true
}

// Set writes the record for date and updates the index.
func (c *LocalCache) Set(date string, rec Record) error {
	if !IsValidDate(date) {
		return NewError(ErrCodeInvalidInput, "invalid date "+date)
	}
	rec.normalize()
	data, err := json.Marshal(rec)
	if err != nil {
		return WrapError(ErrCodeStorage, "encode record", err)
	}
	if err := c.store.Set(journalKeyPrefix+date, data); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.SearchStrings(c.index, date)
	if i == len(c.index) || c.index[i] != date {
		c.index = append(c.index, "")
		copy(c.index[i+1:], c.index[i:])
		c.index[i] = date
	}
	return nil
}

// Delete removes the record for date.
func (c *LocalCache) Delete(date string) error {
	if err := c.store.Delete(journalKeyPrefix + date); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.SearchStrings(c.index, date)
	if i < len(c.index) && c.index[i] == date {
		c.index = append(c.index[:i], c.index[i+1:]...)
	}
	return nil
}

// KnownDates returns every date with a stored record, ascending.
func (c *LocalCache) KnownDates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.index...)
}

// prefixDeleter is implemented by stores that can drop a key range at once.
type prefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Clear removes every journal record and returns how many were dropped.
func (c *LocalCache) Clear(ctx context.Context) (int, error) {
	dates := c.KnownDates()
	if bulk, ok := c.store.(prefixDeleter); ok {
		if _, err := bulk.DeletePrefix(ctx, journalKeyPrefix); err != nil {
			return 0, err
		}
		c.mu.Lock()
		c.index = nil
		c.mu.Unlock()
		return len(dates), nil
	}
	removed := 0
	for _, date := range dates {
		if err := c.Delete(date); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Ledger reads the capital ledger. A corrupt ledger reads as empty.
func (c *LocalCache) Ledger() map[string]LedgerEntry {
	out := map[string]LedgerEntry{}
	data, ok, err := c.store.Get(ledgerKey)
	if err != nil {
		c.logger.Warn("ledger read failed", "err", err)
		return out
	}
	if !ok {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Warn("discarding corrupt capital ledger", "err", err)
		return map[string]LedgerEntry{}
	}
	for date := range out {
		if !IsValidDate(date) {
			delete(out, date)
		}
	}
	return out
}

// SetLedger replaces the capital ledger.
func (c *LocalCache) SetLedger(ledger map[string]LedgerEntry) error {
	data, err := json.Marshal(ledger)
	if err != nil {
		return WrapError(ErrCodeStorage, "encode ledger", err)
	}
	return c.store.Set(ledgerKey, data)
}

// DeleteLedger removes the capital ledger.
func (c *LocalCache) DeleteLedger() error {
	return c.store.Delete(ledgerKey)
}

// SelectedDate returns the persisted date selection.
func (c *LocalCache) SelectedDate() (string, bool) {
	value, ok := c.setting(selectedDateKey)
	if !ok || !IsValidDate(value) {
		return "", false
	}
	return value, true
}

// SetSelectedDate persists the date selection.
func (c *LocalCache) SetSelectedDate(date string) error {
	return c.store.Set(selectedDateKey, []byte(date))
}

// Theme returns the persisted UI theme, "light" when unset.
func (c *LocalCache) Theme() string {
	value, ok := c.setting(themeKey)
	if !ok || (value != "light" && value != "dark") {
		return "light"
	}
	return value
}

// SetTheme persists the UI theme.
func (c *LocalCache) SetTheme(theme string) error {
	if theme != "light" && theme != "dark" {
		return NewError(ErrCodeInvalidInput, "theme must be light or dark")
	}
	return c.store.Set(themeKey, []byte(theme))
}

func (c *LocalCache) setting(key string) (string, bool) {
	data, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("settings read failed", "key", key, "err", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
