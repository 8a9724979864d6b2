package chat

import (
	"fmt"
	"strings"

	"sitecheck/analytics"
	"sitecheck/store"
)

// Plan records how a question was routed, echoed back in facts/meta.
type Plan struct {
	Intent string `json:"intent"`
	Scope  Scope  `json:"scope"`
	Style  string `json:"style,omitempty"`
}

type ScopeAcceptance struct {
	AcceptanceTotal       int    `json:"acceptance_total"`
	AcceptanceQualified   int    `json:"acceptance_qualified"`
	AcceptanceUnqualified int    `json:"acceptance_unqualified"`
	AcceptancePending     int    `json:"acceptance_pending"`
	Definition            string `json:"definition"`
}

type ScopeIssues struct {
	IssuesTotal  int `json:"issues_total"`
	IssuesOpen   int `json:"issues_open"`
	IssuesClosed int `json:"issues_closed"`
}

// Facts is the deterministic evidence bundle returned alongside fallback
// answers and handed to the rewrite guardrail.
type Facts struct {
	Plan *Plan `json:"plan,omitempty"`

	AcceptanceTotal       int `json:"acceptance_total"`
	AcceptanceQualified   int `json:"acceptance_qualified"`
	AcceptanceUnqualified int `json:"acceptance_unqualified"`
	AcceptancePending     int `json:"acceptance_pending"`
	IssuesTotal           int `json:"issues_total"`
	IssuesOpen            int `json:"issues_open"`
	IssuesClosed          int `json:"issues_closed"`

	IssuesBySeverity    map[string]int        `json:"issues_by_severity"`
	TopResponsibleUnits []analytics.UnitCount `json:"top_responsible_units"`

	RecentUnqualifiedAcceptance []store.AcceptanceRecord `json:"recent_unqualified_acceptance"`
	RecentOpenIssues            []store.IssueReport      `json:"recent_open_issues"`

	ByBuilding []analytics.BuildingFacts `json:"by_building"`

	Scope           *Scope                 `json:"scope,omitempty"`
	ScopeAcceptance *ScopeAcceptance       `json:"scope_acceptance,omitempty"`
	ScopeIssues     *ScopeIssues           `json:"scope_issues,omitempty"`
	ByFloor         []analytics.FloorFacts `json:"by_floor,omitempty"`
}

func progressAnswer(building string, progress []analytics.BuildingProgress) string {
	var lines []string
	if building != "" {
		lines = append(lines, building+"工序进度（按已落库验收记录推算）：")
	} else {
		lines = append(lines, "项目工序进度（每栋：工序→到几层，按已落库验收记录推算）：")
	}

	if len(progress) == 0 {
		lines = append(lines, "- 暂无可用的楼栋/楼层数据（请确保部位包含‘1栋6层’且已录入验收）。")
	} else {
		for _, bp := range progress {
			if len(bp.Processes) == 0 {
				continue
			}
			var segs []string
			for _, p := range bp.Processes {
				if p.Status != "" && p.Status != "合格" {
					segs = append(segs, fmt.Sprintf("%s到%d层（%s）", p.Process, p.MaxFloor, p.Status))
				} else {
					segs = append(segs, fmt.Sprintf("%s到%d层", p.Process, p.MaxFloor))
				}
			}
			if len(segs) > 0 {
				lines = append(lines, "- "+bp.Building+"："+strings.Join(segs, "；"))
			}
		}
	}

	lines = append(lines, "\n提示：统计口径=同一工序在该楼栋出现过的最高楼层；楼栋/楼层解析依赖部位格式‘1栋6层/区域’。")
	return strings.Join(lines, "\n")
}

func issuesAnswer(detail bool, scope Scope, cats []analytics.IssueCategory) string {
	var scopeTxt []string
	if scope.Building != "" {
		scopeTxt = append(scopeTxt, scope.Building)
	}
	if scope.Floor != nil {
		scopeTxt = append(scopeTxt, fmt.Sprintf("%d层", *scope.Floor))
	}
	scopeS := strings.Join(scopeTxt, "，")

	head := "巡检问题类型排行"
	if detail {
		head = "巡检问题明细（按类型汇总+示例）"
	}
	if scopeS != "" {
		head += "（" + scopeS + "）"
	}
	lines := []string{head + "："}

	if len(cats) == 0 {
		lines = append(lines, "- 暂无可统计的问题数据（可能未录入巡检，或楼栋/楼层未解析）。")
	} else {
		for i, c := range cats {
			lines = append(lines, fmt.Sprintf("%d) %s：%d条（未闭环%d，严重%d）", i+1, c.Category, c.Total, c.Open, c.Severe))
			if detail {
				for n, sm := range c.Samples {
					if n >= 3 {
						break
					}
					lines = append(lines, fmt.Sprintf("   - 例：%s｜%s（%s，%s）", sm.Where, sm.Desc, sm.Status, sm.Severity))
				}
			}
		}
	}

	if !detail {
		lines = append(lines, "\n你可以继续问：‘具体什么问题？’我会把每类的示例条目列出来。")
	}
	return strings.Join(lines, "\n")
}

func focusAnswer(pack *analytics.FocusPack) string {
	m := pack.Metrics
	var sb strings.Builder
	sb.WriteString("重点关注（基于近一段时间验收+巡检数据）：\n")
	fmt.Fprintf(&sb, "- 未闭环问题：%d 条（严重 %d，超期 %d）\n", m.IssuesOpen, m.IssuesOpenSevere, m.IssuesOpenOverdue)
	fmt.Fprintf(&sb, "- 验收风险分项：不合格 %d 项，甩项 %d 项\n", m.AcceptanceUnqualifiedItems, m.AcceptancePendingItems)

	if len(pack.TopFocus) > 0 {
		sb.WriteString("\n优先闭环建议：\n")
		for i, t := range pack.TopFocus {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&sb, "%d) %s（风险分 %d）\n", i+1, t.Title, t.RiskScore)
		}
	}

	sb.WriteString("\n提示：楼栋/楼层解析依赖部位格式‘1栋6层/区域’，数据不全会影响统计。\n")
	sb.WriteString("如果你想看更细：可以问‘1栋进展’、‘2栋哪类问题最多’、‘具体什么问题’。")
	return sb.String()
}

func fallbackAnswer(q string, facts *Facts) string {
	if strings.Contains(q, "不合格") && strings.Contains(q, "验收") {
		return fmt.Sprintf("当前验收不合格 %d 条（合格 %d，甩项 %d）。",
			facts.AcceptanceUnqualified, facts.AcceptanceQualified, facts.AcceptancePending)
	}
	if strings.Contains(q, "巡检") && containsAny(q, []string{"多少", "几条", "数量"}) {
		return fmt.Sprintf("当前巡检问题共 %d 条，其中未闭环(open) %d 条。", facts.IssuesTotal, facts.IssuesOpen)
	}
	if strings.Contains(q, "责任单位") || strings.Contains(q, "谁") {
		if len(facts.TopResponsibleUnits) > 0 {
			head := facts.TopResponsibleUnits[0]
			return fmt.Sprintf("未闭环问题最多的责任单位是 %s（%d 条）。", head.ResponsibleUnit, head.Count)
		}
		return "当前没有可统计的责任单位分布。"
	}

	if containsAny(q, []string{"解释", "怎么理解", "含义"}) {
		return strings.Join([]string{
			"说明：我基于本项目已写入的验收/巡检数据进行汇总。",
			"- ‘验收分项’：按分项(item/item_code)去重后统计，并按最差结果归类（不合格>甩项>合格）。",
			"- ‘巡检未闭环’：status=open 的问题数。",
			"- ‘未解析’楼栋：说明该条记录的 region_text/building_no 无法解析到楼栋，建议按‘1栋6层/区域’规范填写。",
		}, "\n")
	}

	if containsAny(q, []string{"为什么", "原因", "归因", "分析", "风险", "建议", "怎么改", "怎么做"}) {
		lines := []string{"分析与建议（基于现有事实）："}
		if len(facts.TopResponsibleUnits) > 0 {
			head := facts.TopResponsibleUnits[0]
			lines = append(lines, fmt.Sprintf("- 当前未闭环问题主要集中在责任单位：%s（%d 条）。", head.ResponsibleUnit, head.Count))
		}
		if len(facts.RecentUnqualifiedAcceptance) > 0 {
			r := facts.RecentUnqualifiedAcceptance[0]
			remark := "无"
			if r.Remark != nil && strings.TrimSpace(*r.Remark) != "" {
				remark = *r.Remark
			}
			lines = append(lines, fmt.Sprintf("- 最近一次不合格验收：%s / %s / %s（备注：%s）。",
				orDash(r.RegionText), orDash(deref(r.Item)), orDash(deref(r.Indicator)), remark))
		}
		if len(facts.RecentOpenIssues) > 0 {
			i := facts.RecentOpenIssues[0]
			unit := deref(i.ResponsibleUnit)
			if strings.TrimSpace(unit) == "" {
				unit = "未填写"
			}
			lines = append(lines, fmt.Sprintf("- 最近一条未闭环巡检：%s（责任单位：%s）。", orDash(i.RegionText), unit))
		}
		lines = append(lines, "- 建议：优先闭环 open 问题；对不合格分项复查并补充照片/整改记录；统一位置填写以提升楼栋/楼层统计质量。")
		return strings.Join(lines, "\n")
	}

	if containsAny(q, []string{"进展", "进度", "每栋", "各栋", "楼栋", "几栋"}) {
		target := extractBuilding(strings.ReplaceAll(q, " ", ""))

		var scoped []analytics.BuildingFacts
		for _, b := range facts.ByBuilding {
			if target != "" && b.Building != target {
				continue
			}
			scoped = append(scoped, b)
		}

		var lines []string
		if target != "" {
			lines = append(lines, target+"进展（基于已落库数据）：")
		} else {
			lines = append(lines, "项目进展（按楼栋汇总）：")
		}

		switch {
		case len(scoped) > 0:
			for _, b := range scoped {
				lines = append(lines, fmt.Sprintf("- %s：验收%d（不合格%d，合格%d，甩项%d）；巡检%d（未闭环%d）",
					b.Building, b.AcceptanceTotal, b.AcceptanceUnqualified, b.AcceptanceQualified,
					b.AcceptancePending, b.IssuesTotal, b.IssuesOpen))
			}
		case target != "":
			lines = append(lines, "- 暂无该楼栋的数据（可能楼栋未解析或尚未录入）。")
		default:
			lines = append(lines, "- 暂无可按楼栋汇总的数据（可能还没有写入 building_no）。")
		}
		return strings.Join(lines, "\n")
	}

	return "我已读取本项目的验收与巡检汇总数据。你可以更自由地问：‘项目进展如何？’、‘每栋情况总结并解释原因？’、‘为什么巡检未闭环这么多？’、‘给出风险点和整改建议’。"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
