package follows

import (
	"slices"
	"strconv"
	"strings"

	"github.com/streamcatch/streamcatch/internal/catalog"
)

const (
	StatusAll       = "all"
	StatusRecording = "recording"
	StatusOffline   = "offline"
)

// Filter narrows an already loaded follow list. Zero values match everything.
type Filter struct {
	Search   string `json:"search"`
	Status   string `json:"status"`
	Platform string `json:"platform"`
}

// IsRecording reports whether any of the follow's recordings is still live.
func IsRecording(f catalog.Follow) bool {
	if f.Account == nil {
		return false
	}
	for _, rec := range f.Account.Recordings {
		if rec.IsLive() {
			return true
		}
	}
	return false
}

// Apply returns the follows matching every criterion of fl, in input order.
func Apply(follows []catalog.Follow, fl Filter) []catalog.Follow {
	search := strings.ToLower(strings.TrimSpace(fl.Search))
	platform := strings.ToLower(strings.TrimSpace(fl.Platform))
	if platform == StatusAll {
		platform = ""
	}

	out := make([]catalog.Follow, 0, len(follows))
	for _, f := range follows {
		if f.Account == nil {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(f.Account.AccountID), search) &&
			!strings.Contains(strings.ToLower(f.Account.Platform), search) {
			continue
		}
		switch fl.Status {
		case StatusRecording:
			if !IsRecording(f) {
				continue
			}
		case StatusOffline:
			if IsRecording(f) {
				continue
			}
		}
		if platform != "" && strings.ToLower(f.Account.Platform) != platform {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Platforms returns the distinct platforms of the loaded list, lowercased and sorted.
func Platforms(follows []catalog.Follow) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, f := range follows {
		if f.Account == nil {
			continue
		}
		p := strings.ToLower(f.Account.Platform)
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// ParseExpanded reads the expanded channel set from the comma separated
// expand query parameter. Unparseable ids are ignored.
func ParseExpanded(raw string) map[int64]bool {
	out := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			out[id] = true
		}
	}
	return out
}

// ToggleExpanded returns the expand parameter value with id flipped.
func ToggleExpanded(expanded map[int64]bool, id int64) string {
	ids := make([]int64, 0, len(expanded)+1)
	for e := range expanded {
		if e != id {
			ids = append(ids, e)
		}
	}
	if !expanded[id] {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, e := range ids {
		parts[i] = strconv.FormatInt(e, 10)
	}
	return strings.Join(parts, ",")
}

func normalizeStatus(s string) string {
	switch s {
	case StatusRecording, StatusOffline:
		return s
	}
	return StatusAll
}
