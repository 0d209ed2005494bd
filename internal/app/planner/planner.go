package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/version"
)

// MaxRangeSpan 是固定区间允许的最大跨度（End-Start）。
const MaxRangeSpan = 20000

// ValidationError 表示请求在扫描开始前就被拒绝（不会产生任何探测）。
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "请求无效"
	}
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + "：" + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation 报告 err 是否为请求校验失败。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Plan 校验输入并生成确定性的逐版本请求（不做任何网络访问）。
//
// - 版本按输入顺序去重，每个都必须是完整版本格式
// - 每个版本的平台集合经 version.Applies 裁剪；裁剪后为空时，单版本整体拒绝，多版本则跳过并记录原因
// - TotalPlanned = Σ PlannedProbes（adaptive 只含首轮）
func Plan(versions []string, platforms []domain.PlatformArch, st domain.Strategy) (domain.RunPlan, error) {
	vs := dedupe(versions)
	if len(vs) == 0 {
		return domain.RunPlan{}, &ValidationError{Field: "version", Reason: "至少需要一个版本"}
	}
	for _, v := range vs {
		if err := version.Validate(v); err != nil {
			return domain.RunPlan{}, &ValidationError{Field: "version", Reason: err.Error(), Err: err}
		}
	}

	if len(platforms) == 0 {
		return domain.RunPlan{}, &ValidationError{Field: "platform", Reason: "平台选择为空"}
	}
	for _, p := range platforms {
		if !p.Valid() {
			return domain.RunPlan{}, &ValidationError{Field: "platform", Reason: fmt.Sprintf("未知平台：%d", int(p))}
		}
	}

	if err := validateStrategy(st); err != nil {
		return domain.RunPlan{}, err
	}

	plan := domain.RunPlan{
		Requests: make([]domain.SearchRequest, 0, len(vs)),
		Skipped:  []domain.SkippedVersion{},
	}
	for _, v := range vs {
		applicable := make([]domain.PlatformArch, 0, len(platforms))
		pruned := make([]string, 0, 1)
		for _, p := range platforms {
			if version.Applies(p, v) {
				applicable = append(applicable, p)
			} else {
				pruned = append(pruned, p.Label())
			}
		}

		if len(applicable) == 0 {
			reason := fmt.Sprintf("%s 不提供所选平台（%s）", version.Short(v), strings.Join(pruned, ", "))
			if len(vs) == 1 {
				return domain.RunPlan{}, &ValidationError{Field: "platform", Reason: reason}
			}
			plan.Skipped = append(plan.Skipped, domain.SkippedVersion{Version: v, Reason: reason})
			continue
		}

		req := domain.SearchRequest{
			Version:   v,
			Platforms: applicable,
			Strategy:  st,
		}
		plan.Requests = append(plan.Requests, req)
		plan.TotalPlanned += req.PlannedProbes()
	}
	return plan, nil
}

func validateStrategy(st domain.Strategy) error {
	switch st.Kind {
	case domain.StrategyFixed:
		r := st.Fixed
		if r.Start < 0 {
			return &ValidationError{Field: "range", Reason: fmt.Sprintf("起始构建号不能为负：%d", r.Start)}
		}
		if r.End < r.Start {
			return &ValidationError{Field: "range", Reason: fmt.Sprintf("区间倒置：%d-%d", r.Start, r.End)}
		}
		if r.End-r.Start > MaxRangeSpan {
			return &ValidationError{Field: "range", Reason: fmt.Sprintf("区间跨度超过 %d：%d-%d", MaxRangeSpan, r.Start, r.End)}
		}
	case domain.StrategyAdaptive:
		a := st.Adaptive
		if a.InitialWindow < 0 || a.Increment <= 0 || a.MaxRounds < 0 {
			return &ValidationError{Field: "adaptive", Reason: fmt.Sprintf("参数非法：%+v", a)}
		}
	default:
		return &ValidationError{Field: "strategy", Reason: fmt.Sprintf("未知策略：%q", st.Kind)}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
