// Package banlist implements BanSet (spec.md §3): the set of banned IP
// addresses/CIDRs the Router consults before dispatch, rebuilt whenever
// the backend's banned-ips.json changes on disk. The watch loop is
// grounded on the fsnotify idiom spf13/viper itself uses for
// WatchConfig, generalized to vanilla Minecraft's ban-list format.
package banlist

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"go.lazytran.dev/lazytran/internal/errs"
)

type entry struct {
	single net.IP
	cidr   *net.IPNet
}

type snapshot []entry

// BanSet is an atomically-swappable set of banned IPs/CIDRs (spec.md §5:
// "BanSet is rebuilt atomically and swapped behind a read lock").
type BanSet struct {
	ptr atomic.Pointer[snapshot]
}

// New returns an empty BanSet.
func New() *BanSet {
	b := &BanSet{}
	empty := snapshot{}
	b.ptr.Store(&empty)
	return b
}

// Contains reports whether ip matches any banned address or CIDR.
func (b *BanSet) Contains(ip net.IP) bool {
	snap := b.ptr.Load()
	if snap == nil {
		return false
	}
	for _, e := range *snap {
		if e.cidr != nil {
			if e.cidr.Contains(ip) {
				return true
			}
			continue
		}
		if e.single.Equal(ip) {
			return true
		}
	}
	return false
}

func (b *BanSet) replace(s snapshot) { b.ptr.Store(&s) }

// banRecord mirrors the subset of vanilla/Paper's banned-ips.json this
// proxy cares about; unknown fields (created, source, expires, reason)
// are ignored.
type banRecord struct {
	IP string `json:"ip"`
}

// parseFile reads path and returns the parsed snapshot. A missing file
// is not an error — it means no bans exist yet.
func parseFile(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snapshot{}, nil
	}
	if err != nil {
		return nil, errs.New(errs.KindIO, "banlist.parseFile", err)
	}

	var records []banRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "banlist.parseFile", err)
	}

	out := make(snapshot, 0, len(records))
	for _, r := range records {
		if ip := net.ParseIP(r.IP); ip != nil {
			out = append(out, entry{single: ip})
			continue
		}
		if _, cidr, err := net.ParseCIDR(r.IP); err == nil {
			out = append(out, entry{cidr: cidr})
			continue
		}
		zap.S().Warnw("banlist: skipping unparsable entry", "value", r.IP)
	}
	return out, nil
}

// Load parses path once into a fresh, non-watching BanSet — used by
// Watch's initial load.
func Load(path string) (*BanSet, error) {
	snap, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	b := New()
	b.replace(snap)
	return b, nil
}

// Watcher reloads a BanSet's contents whenever path changes on disk.
type Watcher struct {
	Set  *BanSet
	path string
	fw   *fsnotify.Watcher
}

// Watch loads path and begins watching its parent directory for
// changes — a directory watch, not a file watch, because editors and
// Minecraft's own ban-list writer both replace the file via
// write-to-temp-then-rename rather than editing it in place.
func Watch(path string) (*Watcher, error) {
	set, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.New(errs.KindIO, "banlist.Watch", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, errs.New(errs.KindIO, "banlist.Watch", err)
	}

	return &Watcher{Set: set, path: filepath.Clean(path), fw: fw}, nil
}

// Run processes filesystem events until ctx is canceled, reloading Set
// on any write/create/rename touching path.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			snap, err := parseFile(w.path)
			if err != nil {
				zap.S().Warnw("banlist: reload failed, keeping previous set", "err", err)
				continue
			}
			w.Set.replace(snap)
			zap.S().Infow("banlist: reloaded", "path", w.path)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			zap.S().Warnw("banlist: watcher error", "err", err)
		}
	}
}
