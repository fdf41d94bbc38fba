package tradelog

import "context"

// MaxBatchKeys bounds the number of dates in one GetDocuments call.
const MaxBatchKeys = 10

// ChangeType classifies a pushed remote change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// DocumentChange is one real-time update. Record is nil for removals and
// for document subscriptions whose document does not exist.
type DocumentChange struct {
	Type   ChangeType
	Date   string
	Record *Record
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// RemoteStore is the contract of the remote document backend: one collection
// per user, one document per date, last write wins.
type RemoteStore interface {
	// GetDocument returns nil when the document does not exist.
	GetDocument(ctx context.Context, uid, date string) (*Record, error)
	SetDocument(ctx context.Context, uid, date string, rec Record) error
	DeleteDocument(ctx context.Context, uid, date string) error
	ListDocuments(ctx context.Context, uid string) ([]string, error)
	// GetDocuments fetches at most MaxBatchKeys dates; absent dates are
	// missing from the result.
	GetDocuments(ctx context.Context, uid string, dates []string) (map[string]Record, error)
	SubscribeDocument(uid, date string, fn func(DocumentChange)) (Unsubscribe, error)
	// SubscribeCollection replays existing documents as added before
	// delivering live changes.
	SubscribeCollection(uid string, fn func(DocumentChange)) (Unsubscribe, error)
}

func checkBatch(dates []string) error {
	if len(dates) > MaxBatchKeys {
		return NewError(ErrCodeInvalidInput, "batch exceeds the per-request key limit")
	}
	return nil
}
