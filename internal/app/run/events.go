package run

import (
	"context"
	"time"

	"github.com/LoaderSpot/loaderspot/internal/config"
	"github.com/LoaderSpot/loaderspot/internal/domain"
)

type EventKind string

const (
	EventScanStarted   EventKind = "scan_started"
	EventResultFound   EventKind = "result_found"
	EventScanCompleted EventKind = "scan_completed"
	EventNotice        EventKind = "notice"
	EventRunCompleted  EventKind = "run_completed"
)

// Event 是 Observer 回调的值形式，用于需要 channel 的消费者（例如 UI 事件循环）。
// 只有与 Kind 对应的字段有值。
type Event struct {
	Kind EventKind

	Version string
	Index   int
	Total   int

	Hit      domain.Hit
	Result   domain.AggregatedResult
	Duration time.Duration
	Message  string
	Report   domain.RunReport
}

// Stream 在后台运行 e，并把事件按发生顺序写入返回的 channel。
// RunCompleted 一定是最后一个事件（ctx 被取消导致消费方离开时除外），随后 channel 关闭。
func Stream(ctx context.Context, e *Engine, plan domain.RunPlan) <-chan Event {
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		e.Run(ctx, plan, &streamObserver{ctx: ctx, ch: ch})
	}()
	return ch
}

type streamObserver struct {
	ctx context.Context
	ch  chan<- Event
}

// send 在消费方停止读取（ctx 结束）时放弃投递，避免阻塞探测 goroutine。
func (s *streamObserver) send(ev Event) {
	if ev.Kind == EventRunCompleted {
		// 终态事件即使 ctx 已取消也尽量送达（缓冲区有空位时）。
		select {
		case s.ch <- ev:
		default:
			select {
			case s.ch <- ev:
			case <-s.ctx.Done():
			}
		}
		return
	}
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

func (s *streamObserver) OnStart(config.EffectiveConfig, domain.RunPlan) {}

func (s *streamObserver) OnScanStarted(v string, idx, total int) {
	s.send(Event{Kind: EventScanStarted, Version: v, Index: idx, Total: total})
}

func (s *streamObserver) OnResultFound(h domain.Hit) {
	s.send(Event{Kind: EventResultFound, Version: h.Version, Hit: h})
}

func (s *streamObserver) OnScanCompleted(v string, res domain.AggregatedResult, dur time.Duration) {
	s.send(Event{Kind: EventScanCompleted, Version: v, Result: res, Duration: dur})
}

func (s *streamObserver) OnNotice(msg string) {
	s.send(Event{Kind: EventNotice, Message: msg})
}

func (s *streamObserver) OnRunCompleted(rr domain.RunReport) {
	s.send(Event{Kind: EventRunCompleted, Report: rr})
}

func (s *streamObserver) OnProgress(domain.ScanProgress, time.Duration) {}
