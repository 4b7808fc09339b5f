package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *RunRecord) error               { return nil }
func (n *NoopRecorder) RecordGridSearch(_ *GridSearchRecord) error { return nil }
func (n *NoopRecorder) RecordLiveEvent(_ *LiveEvent) error         { return nil }
func (n *NoopRecorder) GetRun(_ string) (*RunRecord, error)        { return nil, ErrNotFound }
func (n *NoopRecorder) Close() error                               { return nil }
