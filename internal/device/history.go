package device

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

// HistoryEntry is one recorded element value.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	Device   string    `json:"device"`
	Property string    `json:"property"`
	Element  string    `json:"element"`
	Kind     indi.Kind `json:"kind"`

	// ValueNum holds number values and blob sizes.
	ValueNum *float64 `json:"value_num,omitempty"`

	// ValueText holds text, switch and light values, blob formats, and
	// numbers that are NaN or infinite.
	ValueText *string `json:"value_text,omitempty"`

	// State is the property state when the value was recorded.
	State indi.PropertyState `json:"state"`

	// Timestamp is the INDI timestamp of the change (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// HistoryRepository stores and retrieves property value history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// RecordChange stores one row per element written by the change.
	// Changes other than define and update are ignored.
	//
	// Returns:
	//   - int: Number of rows written
	//   - error: nil on success, otherwise the underlying persistence error
	RecordChange(ctx context.Context, change Change) (int, error)

	// GetHistory returns recent history for one property.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - device, property: Property identity
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []HistoryEntry: Ordered newest-first entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, device, property string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries older than the retention window.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// historyRows flattens a change into the rows a repository stores.
func historyRows(change Change) []HistoryEntry {
	if change.Snapshot == nil || (change.Op != ChangeDefine && change.Op != ChangeUpdate) {
		return nil
	}
	p := change.Snapshot
	rows := make([]HistoryEntry, 0, len(change.Elements))
	for _, name := range change.Elements {
		e, ok := p.Element(name)
		if !ok {
			continue
		}
		row := HistoryEntry{
			Device:    change.Device,
			Property:  change.Property,
			Element:   name,
			Kind:      p.Kind,
			State:     p.State,
			Timestamp: change.Timestamp.UTC(),
		}
		switch p.Kind {
		case indi.KindNumber:
			v := e.Number
			if isFinite(v) {
				row.ValueNum = &v
			} else {
				s := strconv.FormatFloat(v, 'g', -1, 64)
				row.ValueText = &s
			}
		case indi.KindText:
			v := e.Text
			row.ValueText = &v
		case indi.KindSwitch:
			v := string(e.Switch)
			row.ValueText = &v
		case indi.KindLight:
			v := string(e.Light)
			row.ValueText = &v
		case indi.KindBLOB:
			if change.Op == ChangeDefine {
				continue
			}
			size := float64(e.Size)
			format := e.Format
			row.ValueNum, row.ValueText = &size, &format
		}
		rows = append(rows, row)
	}
	return rows
}
