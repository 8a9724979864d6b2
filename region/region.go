package region

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the structured projection of a free-text location such as
// "1栋6层/A区". Fields parse independently; anything unparseable stays nil.
type Parsed struct {
	BuildingNo *string
	FloorNo    *int
	Zone       *string
}

func (p Parsed) Empty() bool {
	return p.BuildingNo == nil && p.FloorNo == nil && p.Zone == nil
}

var cnNum = map[rune]int{
	'零': 0,
	'一': 1,
	'二': 2,
	'两': 2,
	'三': 3,
	'四': 4,
	'五': 5,
	'六': 6,
	'七': 7,
	'八': 8,
	'九': 9,
	'十': 10,
}

var (
	// Building: 2#, 2栋, 2楼, 二号楼
	buildingRe = regexp.MustCompile(`([\d一二三四五六七八九十两]+)号?(?:栋|楼|#)`)
	// Floor: 3层 / 3楼
	floorRe = regexp.MustCompile(`([\d一二三四五六七八九十两]+)(?:层|楼)`)
	// Room/zone right after the floor marker, e.g. 2#3层304, 3层B区
	roomAfterFloorRe = regexp.MustCompile(`(?:层|楼)([A-Za-z0-9区]{2,})$`)
)

// Parse extracts building/floor/zone from user-entered region text.
// Best-effort: never returns an error, unmatched fields are simply nil.
// The building number is normalized to "{n}栋".
func Parse(regionText string) Parsed {
	raw := strings.TrimSpace(regionText)
	if raw == "" {
		return Parsed{}
	}

	s := strings.ReplaceAll(raw, " ", "")

	var out Parsed
	if m := buildingRe.FindStringSubmatch(s); m != nil {
		if bi, ok := cnToInt(m[1]); ok {
			b := strconv.Itoa(bi) + "栋"
			out.BuildingNo = &b
		}
	}

	if m := floorRe.FindStringSubmatch(s); m != nil {
		if fi, ok := cnToInt(m[1]); ok {
			f := fi
			out.FloorNo = &f
		}
	}

	if strings.Contains(raw, "/") {
		segs := strings.Split(raw, "/")
		var last string
		for _, p := range segs {
			if t := strings.TrimSpace(p); t != "" {
				last = t
			}
		}
		if len(segs) >= 2 && last != "" {
			out.Zone = &last
		}
	} else if m := roomAfterFloorRe.FindStringSubmatch(s); m != nil {
		z := m[1]
		out.Zone = &z
	}

	return out
}

// cnToInt converts a small numeral run (Arabic digits or chinese numerals
// up to 99, e.g. 十, 十一, 二十, 二十三) to an int.
func cnToInt(s string) (int, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}

	allDigits := true
	for _, r := range t {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	runes := []rune(t)
	for _, r := range runes {
		if _, ok := cnNum[r]; !ok {
			return 0, false
		}
	}

	if t == "十" {
		return 10, true
	}
	if runes[0] == '十' {
		return 10 + cnDigits(runes[1:]), true
	}
	for i, r := range runes {
		if r == '十' {
			tens := cnDigits(runes[:i]) * 10
			ones := cnDigits(runes[i+1:])
			return tens + ones, true
		}
	}
	if len(runes) == 1 {
		return cnNum[runes[0]], true
	}
	return 0, false
}

// cnDigits maps a single numeral rune; longer runs without 十 are not part
// of the documented grammar and count as zero.
func cnDigits(rs []rune) int {
	if len(rs) != 1 {
		return 0
	}
	return cnNum[rs[0]]
}
