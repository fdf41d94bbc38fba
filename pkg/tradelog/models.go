package tradelog

import (
	"encoding/json"
	"math"
	"strings"
)

// Kind selects the take-profit or stop-loss list of a record.
type Kind string

const (
	KindTP Kind = "tp"
	KindSL Kind = "sl"
)

// AssetPlaceholder is stored when an entry has no asset.
const AssetPlaceholder = "---"

// DefaultStartCapital seeds the capital curve when no earlier ledger data exists.
const DefaultStartCapital = 100.0

// ParseKind validates a kind string.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindTP:
		return KindTP, nil
	case KindSL:
		return KindSL, nil
	}
	return "", NewError(ErrCodeInvalidInput, "kind must be tp or sl: "+value)
}

// Entry is a single TP or SL percentage.
type Entry struct {
	ID    int64  `json:"id"`
	Value Amount `json:"value"`
	Asset string `json:"asset"`
}

// Record is the journal of one calendar day.
type Record struct {
	TPs          []Entry `json:"tps"`
	SLs          []Entry `json:"sls"`
	StartCapital Amount  `json:"startCapital"`
	FinalCapital Amount  `json:"finalCapital"`
}

// LedgerEntry is the capital at the start and end of a day.
type LedgerEntry struct {
	Start Amount `json:"start"`
	Final Amount `json:"final"`
}

// NewRecord returns an empty record seeded with start capital.
func NewRecord(start Amount) Record {
	start = start.Round2()
	return Record{
		TPs:          []Entry{},
		SLs:          []Entry{},
		StartCapital: start,
		FinalCapital: start,
	}
}

// TotalTP sums the take-profit values.
func (r Record) TotalTP() Amount {
	return sumEntries(r.TPs)
}

// TotalSL sums the stop-loss values.
func (r Record) TotalSL() Amount {
	return sumEntries(r.SLs)
}

// Net is TotalTP minus TotalSL.
func (r Record) Net() Amount {
	return r.TotalTP().Sub(r.TotalSL())
}

// IsEmpty reports whether the record has no entries.
func (r Record) IsEmpty() bool {
	return len(r.TPs) == 0 && len(r.SLs) == 0
}

// Recompute derives FinalCapital from StartCapital and the entries.
func (r *Record) Recompute() {
	r.StartCapital = r.StartCapital.Round2()
	r.FinalCapital = r.StartCapital.Add(r.Net()).Round2()
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	out.TPs = append(make([]Entry, 0, len(r.TPs)), r.TPs...)
	out.SLs = append(make([]Entry, 0, len(r.SLs)), r.SLs...)
	return out
}

// SameEntries compares the serialized tps/sls of two records. Capital fields
// are ignored; they are derived locally.
func (r Record) SameEntries(other Record) bool {
	a, errA := entriesJSON(r)
	b, errB := entriesJSON(other)
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

func (r *Record) list(kind Kind) *[]Entry {
	if kind == KindTP {
		return &r.TPs
	}
	return &r.SLs
}

func (r *Record) normalize() {
	if r.TPs == nil {
		r.TPs = []Entry{}
	}
	if r.SLs == nil {
		r.SLs = []Entry{}
	}
}

func (r Record) maxID() int64 {
	var highest int64
	for _, list := range [][]Entry{r.TPs, r.SLs} {
		for _, e := range list {
			if e.ID > highest {
				highest = e.ID
			}
		}
	}
	return highest
}

func sumEntries(entries []Entry) Amount {
	var total Amount
	for _, e := range entries {
		total = total.Add(e.Value)
	}
	return total
}

func entriesJSON(r Record) (string, error) {
	r.normalize()
	data, err := json.Marshal(struct {
		TPs []Entry `json:"tps"`
		SLs []Entry `json:"sls"`
	}{r.TPs, r.SLs})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalizeAsset(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return AssetPlaceholder
	}
	return asset
}

func validateValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return NewError(ErrCodeValidation, "value must be a positive percentage")
	}
	return nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	rec.normalize()
	return rec, nil
}
