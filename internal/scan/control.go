package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval 是暂停期间轮询控制标志的间隔。
const DefaultPollInterval = 100 * time.Millisecond

// Control 是一次运行的暂停/取消开关。
//
// 约束：
// - cancelled 单调：一旦置位，本次运行内不会被清除
// - paused 可以反复切换；暂停只阻止新的准入，不中断已在途的探测
// - 写方只有驱动方（CLI/调用者），探测任务只读
type Control struct {
	paused    atomic.Bool
	cancelled atomic.Bool

	once sync.Once
	done chan struct{}
}

func NewControl() *Control {
	c := &Control{}
	c.init()
	return c
}

func (c *Control) init() {
	c.once.Do(func() { c.done = make(chan struct{}) })
}

func (c *Control) Pause()  { c.paused.Store(true) }
func (c *Control) Resume() { c.paused.Store(false) }

// TogglePause 切换暂停状态，返回切换后的值。
func (c *Control) TogglePause() bool {
	for {
		old := c.paused.Load()
		if c.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Cancel 可重复调用。
func (c *Control) Cancel() {
	c.init()
	if c.cancelled.CompareAndSwap(false, true) {
		close(c.done)
	}
}

func (c *Control) Paused() bool    { return c.paused.Load() }
func (c *Control) Cancelled() bool { return c.cancelled.Load() }

// Done 在 Cancel 之后关闭。
func (c *Control) Done() <-chan struct{} {
	c.init()
	return c.done
}

// stopped 把操作者取消与 ctx 取消统一成一个检查点。
func (c *Control) stopped(ctx context.Context) bool {
	return c.Cancelled() || ctx.Err() != nil
}

// waitWhilePaused 以短间隔轮询暂停标志；返回 false 表示等待期间被取消。
func (c *Control) waitWhilePaused(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for c.Paused() {
		if c.stopped(ctx) {
			return false
		}
		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		case <-c.Done():
			t.Stop()
			return false
		}
	}
	return !c.stopped(ctx)
}
