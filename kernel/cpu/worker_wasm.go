//go:build js && wasm
// +build js,wasm

package cpu

import (
	"errors"
	"sync"
	"syscall/js"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

// DefaultSpawner loads the benchmark worker script.
func DefaultSpawner() Spawner {
	return WorkerSpawner(ScriptPath)
}

// WorkerSpawner starts a dedicated Worker from path.
func WorkerSpawner(path string) Spawner {
	return func(onMessage func(Message), onError func(error)) (p Port, err error) {
		defer utils.RecoverError("cpu:worker", &err)

		ctor := js.Global().Get("Worker")
		if ctor.Type() != js.TypeFunction {
			return nil, ErrUnsupported
		}
		worker := ctor.New(path)

		w := &jsWorker{worker: worker}
		w.onMessage = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			if len(args) == 0 {
				return nil
			}
			if m, ok := decodeMessage(args[0].Get("data")); ok {
				onMessage(m)
			}
			return nil
		})
		w.onError = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			msg := "worker error"
			if len(args) > 0 {
				if v := args[0].Get("message"); v.Type() == js.TypeString {
					msg = v.String()
				}
			}
			onError(errors.New(msg))
			return nil
		})
		worker.Call("addEventListener", "message", w.onMessage)
		worker.Call("addEventListener", "error", w.onError)
		return w, nil
	}
}

type jsWorker struct {
	worker    js.Value
	onMessage js.Func
	onError   js.Func
	once      sync.Once
	closed    bool
	mu        sync.Mutex
}

func (w *jsWorker) Post(m Message) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerClosed
	}
	defer utils.RecoverError("cpu:postMessage", &err)
	w.worker.Call("postMessage", js.ValueOf(m.ToMap()))
	return nil
}

func (w *jsWorker) Terminate() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		w.worker.Call("removeEventListener", "message", w.onMessage)
		w.worker.Call("removeEventListener", "error", w.onError)
		w.worker.Call("terminate")
		w.onMessage.Release()
		w.onError.Release()
	})
}

func decodeMessage(data js.Value) (Message, bool) {
	if data.Type() != js.TypeObject {
		return Message{}, false
	}
	t := data.Get("type")
	if t.Type() != js.TypeString {
		return Message{}, false
	}
	return Message{
		Type:     MessageType(t.String()),
		CPUUsage: number(data.Get("cpuUsage")),
		Score:    number(data.Get("score")),
		Baseline: number(data.Get("baseline")),
		Message:  str(data.Get("message")),
	}, true
}

func number(v js.Value) *float64 {
	if v.Type() != js.TypeNumber {
		return nil
	}
	f := v.Float()
	return &f
}

func str(v js.Value) string {
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}
