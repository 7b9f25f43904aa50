package users

import (
	"sort"
	"time"
)

type standing struct {
	name  string
	value int64
}

// standings copies every user's metric value under the directory lock so
// the sort never observes a directory mutated mid-scan.
func (d *Directory) standings(metric Metric, now time.Time) []standing {
	d.mu.RLock()
	out := make([]standing, 0, len(d.order))
	d.mu.RUnlock()

	d.each(func(name string, rec *record) {
		var v int64
		switch metric {
		case MetricViewTime:
			v = int64(rec.viewDuration(now))
		default:
			v = rec.currency
		}
		out = append(out, standing{name: name, value: v})
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].value > out[j].value
	})
	return out
}

// Rank returns the user's 1-based position by metric, highest first. Ties
// keep first-seen order.
func (d *Directory) Rank(user string, metric Metric, now time.Time) (int, error) {
	if !d.Exists(user) {
		return 0, noSuchUser(user)
	}
	for i, s := range d.standings(metric, now) {
		if s.name == user {
			return i + 1, nil
		}
	}
	return 0, noSuchUser(user)
}

// Top returns up to n users ordered by metric, highest first.
func (d *Directory) Top(n int, metric Metric, now time.Time) []string {
	if n <= 0 {
		return nil
	}
	all := d.standings(metric, now)
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].name
	}
	return out
}
