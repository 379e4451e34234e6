package usecase

import (
	"context"
	"errors"
	"fmt"

	"lpr_backend/internal/feature/recognition/domain"
)

// State はパイプライン1回分の状態です。
type State int

const (
	StateIngested State = iota
	StateDetected
	StateCropped
	StateRecognized
	StateAggregated
	StateCompleted
	StateFailed
)

var stateNames = [...]string{"Ingested", "Detected", "Cropped", "Recognized", "Aggregated", "Completed", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// next は各状態から正常系で進める唯一の状態です。
var next = map[State]State{
	StateIngested:   StateDetected,
	StateDetected:   StateCropped,
	StateCropped:    StateRecognized,
	StateRecognized: StateAggregated,
	StateAggregated: StateCompleted,
}

// StateObserver は状態遷移ごとに呼ばれます。
type StateObserver func(requestID string, s State)

type stateMachine struct {
	requestID string
	current   State
	observer  StateObserver
}

func newStateMachine(requestID string, observer StateObserver) *stateMachine {
	sm := &stateMachine{requestID: requestID, current: StateIngested, observer: observer}
	sm.notify()
	return sm
}

// advance は次の状態へ進めます。順序違反はプログラムの誤りなのでpanicします。
func (sm *stateMachine) advance(to State) {
	if next[sm.current] != to || sm.current == StateCompleted || sm.current == StateFailed {
		panic(fmt.Sprintf("illegal pipeline transition %s -> %s", sm.current, to))
	}
	sm.current = to
	sm.notify()
}

// fail はFailedへ遷移します。CroppedとRecognizedは部分失敗をデータとして扱うため、
// 期限切れ・キャンセル以外の理由では失敗しません。
func (sm *stateMachine) fail(cause error) {
	switch sm.current {
	case StateIngested, StateDetected:
	case StateCropped, StateRecognized:
		if !errors.Is(cause, domain.ErrTimeout) && !errors.Is(cause, context.Canceled) {
			panic(fmt.Sprintf("pipeline cannot fail in %s: %v", sm.current, cause))
		}
	default:
		panic(fmt.Sprintf("pipeline cannot fail in %s: %v", sm.current, cause))
	}
	sm.current = StateFailed
	sm.notify()
}

func (sm *stateMachine) notify() {
	if sm.observer != nil {
		sm.observer(sm.requestID, sm.current)
	}
}
