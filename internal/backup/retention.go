package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionPolicy caps how many snapshots each age tier keeps. Tiers are by
// age: hourly (<24h), daily (1-7d), weekly (7-30d), monthly (30-365d).
// Snapshots older than a year are always pruned.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

func (p *RetentionPolicy) applyDefaults() {
	if p.Hourly == 0 {
		p.Hourly = 24
	}
	if p.Daily == 0 {
		p.Daily = 7
	}
	if p.Weekly == 0 {
		p.Weekly = 4
	}
	if p.Monthly == 0 {
		p.Monthly = 12
	}
}

// Info describes one snapshot file.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// List returns the snapshots in dir, newest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: reading %s: %w", dir, err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// prune deletes snapshots beyond each tier's cap. Deletion keeps going past
// individual failures; the last error is returned.
func prune(dir string, policy RetentionPolicy) error {
	snapshots, err := List(dir)
	if err != nil {
		return err
	}

	now := time.Now()
	var hourly, daily, weekly, monthly []Info
	var doomed []string

	for _, snap := range snapshots {
		switch age := now.Sub(snap.Timestamp); {
		case age < 24*time.Hour:
			hourly = append(hourly, snap)
		case age < 7*24*time.Hour:
			daily = append(daily, snap)
		case age < 30*24*time.Hour:
			weekly = append(weekly, snap)
		case age < 365*24*time.Hour:
			monthly = append(monthly, snap)
		default:
			doomed = append(doomed, snap.Path)
		}
	}

	for _, tier := range []struct {
		snaps []Info
		keep  int
	}{
		{hourly, policy.Hourly},
		{daily, policy.Daily},
		{weekly, policy.Weekly},
		{monthly, policy.Monthly},
	} {
		if len(tier.snaps) > tier.keep {
			for _, snap := range tier.snaps[tier.keep:] {
				doomed = append(doomed, snap.Path)
			}
		}
	}

	var lastErr error
	for _, path := range doomed {
		if err := os.Remove(path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("backup: pruning snapshots: %w", lastErr)
	}
	return nil
}
