package utils

import (
	"context"
	"time"

	"github.com/lumenlang/dap-adapter/utils/gosync"
	"github.com/sirupsen/logrus"
)

// TimeoutManager fires fn once no Reset call arrives within timeout.
// Used by the Evaluator to bound a single expression evaluation
// (spec §4.4/§5): the evaluation itself cannot be interrupted
// mid-instruction, but the timer lets the caller stop waiting on it.
type TimeoutManager struct {
	timer        *time.Timer
	timeout      time.Duration
	resetChannel chan bool
	cancelChan   chan bool
	fn           func()
}

func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{}
}

// Start begins the timer. fn runs on a background goroutine if timeout
// elapses without an intervening Reset.
func (t *TimeoutManager) Start(ctx context.Context, timeout time.Duration, fn func()) {
	t.timer = time.NewTimer(timeout)
	t.timeout = timeout
	t.fn = fn
	t.resetChannel = make(chan bool)
	t.cancelChan = make(chan bool)
	gosync.Go(ctx, func(ctx context.Context) {
		for {
			select {
			case <-t.timer.C:
				logrus.Debugf("[TimeoutManager] expired")
				t.fn()
				return
			case <-t.resetChannel:
				if !t.timer.Stop() {
					<-t.timer.C
				}
				t.timer.Reset(t.timeout)
			case <-t.cancelChan:
				if !t.timer.Stop() {
					<-t.timer.C
				}
				return
			}
		}
	})
}

func (t *TimeoutManager) Reset() {
	t.resetChannel <- true
}

func (t *TimeoutManager) Cancel() {
	t.cancelChan <- true
}
