package analytics

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// UnresolvedBuilding labels rows whose region text never yielded a building.
const UnresolvedBuilding = "未解析"

// NormalizeBuilding maps a nullable building column to a display bucket.
func NormalizeBuilding(b *string) string {
	if b == nil {
		return UnresolvedBuilding
	}
	s := strings.TrimSpace(*b)
	if s == "" {
		return UnresolvedBuilding
	}
	return s
}

var (
	severeSeverities = map[string]bool{"严重": true, "重大": true, "high": true, "severe": true, "critical": true, "a": true, "一级": true}
	normalSeverities = map[string]bool{"一般": true, "普通": true, "medium": true, "normal": true, "b": true, "二级": true}
)

// NormalizeSeverity folds the many severity spellings clients send into
// canonical keys. Unrecognized values pass through lowercased so new
// vocabularies still show up in breakdowns.
func NormalizeSeverity(sev string) string {
	s := strings.ToLower(strings.TrimSpace(sev))
	if s == "" {
		return "unknown"
	}
	if severeSeverities[s] {
		return "severe"
	}
	if normalSeverities[s] {
		return "normal"
	}
	return s
}

var (
	codePat1 = regexp.MustCompile(`^[A-Za-z]{1,4}-?\d{2,8}$`)
	codePat2 = regexp.MustCompile(`^[A-Za-z0-9_-]{2,16}$`)
)

// LooksLikeCode reports whether a label is an internal code (like "QJ-0102")
// rather than a human-readable name.
func LooksLikeCode(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	if codePat1.MatchString(t) {
		return true
	}
	if codePat2.MatchString(t) && !containsCJK(t) {
		return true
	}
	return false
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fff {
			return true
		}
	}
	return false
}

var leadingNumPat = regexp.MustCompile(`(\d+)`)

// BuildingLess orders buildings numerically when they carry a number
// ("2栋" before "10栋"), pushing unnumbered labels to the end.
func BuildingLess(a, b string) bool {
	ak, an := buildingSortKey(a)
	bk, bn := buildingSortKey(b)
	if ak != bk {
		return ak < bk
	}
	if an != bn {
		return an < bn
	}
	return a < b
}

func buildingSortKey(bn string) (kind, num int) {
	m := leadingNumPat.FindStringSubmatch(bn)
	if m == nil {
		return 1, 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1, 0
	}
	return 0, n
}

func SortBuildings(bs []string) {
	sort.Slice(bs, func(i, j int) bool { return BuildingLess(bs[i], bs[j]) })
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func avgOf(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func medianOf(xs []float64) float64 {
	ys := append([]float64(nil), xs...)
	sort.Float64s(ys)
	n := len(ys)
	if n%2 == 1 {
		return ys[n/2]
	}
	return (ys[n/2-1] + ys[n/2]) / 2
}

const sqlTimeLayout = "2006-01-02 15:04:05"

var dbTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	sqlTimeLayout,
}

// parseDBTime decodes a timestamp that came back from SQLite as text, which
// happens whenever the column passed through an aggregate.
func parseDBTime(s string) (time.Time, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return time.Time{}, false
	}
	for _, layout := range dbTimeLayouts {
		if ts, err := time.Parse(layout, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
