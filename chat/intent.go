package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// Message is one prior conversation turn, used for follow-up resolution.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Scope narrows a question to a building, floor, time window or unit.
type Scope struct {
	Building        string `json:"building,omitempty"`
	Floor           *int   `json:"floor,omitempty"`
	TimeRangeDays   int    `json:"time_range_days,omitempty"`
	ResponsibleUnit string `json:"responsible_unit,omitempty"`
}

const (
	intentProgress     = "progress"
	intentIssuesTop    = "issues_top"
	intentIssuesDetail = "issues_detail"
	intentUnknown      = "unknown"
)

var (
	progressKeys  = []string{"进度", "进展", "工序", "到几层"}
	focusKeys     = []string{"关注", "关注点", "重点", "风险", "预警", "下一步", "focus", "驾驶舱"}
	issueTypeKeys = []string{"哪类", "哪个类型", "类型", "问题多", "最多", "top", "排行"}
	issueWordKeys = []string{"问题", "缺陷", "巡检"}
	detailKeys    = []string{"具体", "明细", "分别", "列出", "都有什么", "哪些问题", "什么问题"}

	followUpPat = regexp.MustCompile(`^(?:那|这个|再看下)?\s*\d+\s*(?:栋|楼|#)\s*(?:呢|怎么样|情况)?$`)

	buildingPat = regexp.MustCompile(`(\d+)\s*(?:栋|楼|#)`)
	floorPat    = regexp.MustCompile(`(?i)(\d+)\s*(?:层|F)`)
	daysPat     = regexp.MustCompile(`近(\d+)(?:天|日)`)
	unitPat     = regexp.MustCompile(`责任单位[:：]?([^` + "\n\r" + `，,。；; ]{2,20})`)
)

// inferIntent routes a question to a deterministic handler. Bare follow-ups
// like "1栋呢" inherit their topic from the most recent user turns. Focus
// wording deliberately falls through; the focus route matches on it later.
func inferIntent(q string, messages []Message) string {
	s := strings.TrimSpace(strings.ReplaceAll(q, " ", ""))

	if containsAny(s, progressKeys) {
		return intentProgress
	}
	if containsAny(s, focusKeys) {
		return intentUnknown
	}

	if followUpPat.MatchString(s) {
		last := lastUserUtterances(messages, 6)
		if containsAny(last, []string{"进度", "进展", "工序", "到几层", "楼栋"}) {
			return intentProgress
		}
		if containsAny(last, []string{"哪类问题", "问题多", "具体什么问题", "巡检", "缺陷"}) {
			return intentIssuesDetail
		}
	}

	if containsAny(s, issueTypeKeys) && containsAny(s, issueWordKeys) {
		return intentIssuesTop
	}

	if containsAny(s, detailKeys) {
		if containsAny(s, issueWordKeys) {
			return intentIssuesDetail
		}
		last := lastUserUtterances(messages, 4)
		if containsAny(last, []string{"问题", "缺陷", "巡检", "未闭环"}) {
			return intentIssuesDetail
		}
	}

	return intentUnknown
}

func isFocusQuery(q string) bool {
	return containsAny(strings.ToLower(q), focusKeys)
}

func extractScope(q string) Scope {
	s := strings.ReplaceAll(q, " ", "")
	var scope Scope
	scope.Building = extractBuilding(s)
	scope.Floor = extractFloor(s)
	scope.TimeRangeDays = extractDays(s)
	scope.ResponsibleUnit = extractResponsibleUnit(s)
	return scope
}

func extractBuilding(s string) string {
	if m := buildingPat.FindStringSubmatch(s); m != nil {
		return m[1] + "栋"
	}
	return ""
}

func extractFloor(s string) *int {
	if m := floorPat.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	return nil
}

func extractDays(s string) int {
	if containsAny(s, []string{"本周", "近7天", "最近7天"}) {
		return 7
	}
	if containsAny(s, []string{"近两周", "最近两周", "近14天", "最近14天"}) {
		return 14
	}
	if containsAny(s, []string{"近30天", "最近30天", "近一月", "最近一月"}) {
		return 30
	}
	if m := daysPat.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func extractResponsibleUnit(s string) string {
	if m := unitPat.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// lastUserUtterances concatenates the newest n user turns, newest first.
func lastUserUtterances(messages []Message, n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	count := 0
	for i := len(messages) - 1; i >= 0 && count < n; i-- {
		role := strings.ToLower(strings.TrimSpace(messages[i].Role))
		if role != "user" && role != "human" {
			continue
		}
		content := strings.TrimSpace(messages[i].Content)
		if content == "" {
			continue
		}
		sb.WriteString(content)
		count++
	}
	return sb.String()
}

func containsAny(s string, keys []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keys {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
