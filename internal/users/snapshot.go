package users

import "time"

// Snapshot is the persisted shape of a user record. Presence and open
// session state are not part of it.
type Snapshot struct {
	Name        string
	CreatedAt   time.Time
	ViewSeconds int64
	Currency    int64
}

// Snapshot captures every user. View time includes the elapsed part of open
// sessions so a snapshot taken at shutdown loses nothing.
func (d *Directory) Snapshot(now time.Time) []Snapshot {
	var out []Snapshot
	d.each(func(name string, rec *record) {
		out = append(out, Snapshot{
			Name:        name,
			CreatedAt:   rec.createdAt,
			ViewSeconds: int64(rec.viewDuration(now) / time.Second),
			Currency:    rec.currency,
		})
	})
	return out
}

// Restore loads persisted records. Restored users start absent; records
// already in the directory keep their presence but take the stored values.
func (d *Directory) Restore(snaps []Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range snaps {
		if s.Name == "" {
			continue
		}
		currency := s.Currency
		if currency < 0 {
			currency = 0
		}
		view := time.Duration(s.ViewSeconds) * time.Second
		if view < 0 {
			view = 0
		}

		rec, ok := d.records[s.Name]
		if !ok {
			rec = &record{}
			d.records[s.Name] = rec
			d.order = append(d.order, s.Name)
		}
		rec.mu.Lock()
		rec.createdAt = s.CreatedAt
		rec.accumulated = view
		rec.currency = currency
		rec.mu.Unlock()
	}
	d.logger.Info().Int("users", len(snaps)).Msg("user directory restored")
}
