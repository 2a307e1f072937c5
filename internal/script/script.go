// Package script runs model handlers written in JavaScript. Each script
// model owns one worker goroutine with a dedicated interpreter; requests
// are serialised through a bounded queue and time out on the caller side
// without interrupting the worker.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/oai"
)

const queueDepth = 64

// Input is the payload handed to a script handler.
type Input struct {
	Request json.RawMessage    `json:"request"`
	Parsed  *oai.ParsedRequest `json:"parsed"`
	Model   *config.Model      `json:"model"`
	Meta    Meta               `json:"meta"`
}

// Meta carries per-request values scripts may want to echo.
type Meta struct {
	RequestID string `json:"request_id"`
	Now       string `json:"now"`
}

type task struct {
	input []byte
	reply chan result
}

type result struct {
	reply oai.Reply
	err   error
}

// Worker owns one script runtime. Eval is safe for concurrent use; the
// runtime itself is confined to the worker goroutine.
type Worker struct {
	tasks    chan task
	done     chan struct{}
	stopOnce sync.Once
	timeout  time.Duration
	log      *slog.Logger
}

// NewWorker starts the worker for one script model and waits for its
// runtime to finish loading. A broken script fails here, which fails the
// snapshot build.
func NewWorker(modelID, scriptsDir string, spec *config.ScriptSpec) (*Worker, error) {
	w := &Worker{
		tasks:   make(chan task, queueDepth),
		done:    make(chan struct{}),
		timeout: time.Duration(spec.TimeoutMS) * time.Millisecond,
		log:     slog.With("component", "script", "model", modelID),
	}

	ready := make(chan error, 1)
	go w.run(scriptsDir, spec, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

// Stop closes the queue. Tasks already queued are still served; new
// callers get a queue closed error.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Eval runs the handler for one request. The timeout only abandons the
// wait; a stuck script keeps its worker busy until it returns.
func (w *Worker) Eval(input Input) (oai.Reply, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return oai.Reply{}, fmt.Errorf("serialize input failed: %w", err)
	}

	t := task{input: payload, reply: make(chan result, 1)}
	select {
	case w.tasks <- t:
	case <-w.done:
		return oai.Reply{}, errors.New("script queue closed")
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case res := <-t.reply:
		return res.reply, res.err
	case <-timer.C:
		return oai.Reply{}, errors.New("script timeout")
	}
}

// run is the worker goroutine: build the runtime, signal readiness, then
// serve the queue until stopped.
func (w *Worker) run(scriptsDir string, spec *config.ScriptSpec, ready chan<- error) {
	rt, err := newRuntime(scriptsDir, spec, w.log)
	if err != nil {
		ready <- err
		return
	}
	ready <- nil

	for {
		select {
		case t := <-w.tasks:
			t.reply <- rt.call(t.input)
		case <-w.done:
			// Serve what made it into the queue, then quit.
			for {
				select {
				case t := <-w.tasks:
					t.reply <- rt.call(t.input)
				default:
					return
				}
			}
		}
	}
}

// runtime bundles the interpreter state owned by one worker goroutine.
type runtime struct {
	vm        *goja.Runtime
	handle    goja.Callable
	parse     goja.Callable
	stringify goja.Callable
	log       *slog.Logger
}

func newRuntime(scriptsDir string, spec *config.ScriptSpec, log *slog.Logger) (*runtime, error) {
	vm := goja.New()

	registry := require.NewRegistry(
		require.WithGlobalFolders(scriptsDir),
		require.WithLoader(moduleLoader),
	)
	req := registry.Enable(vm)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(slogPrinter{log: log}))
	console.Enable(vm)

	jsonObj := vm.Get("JSON").ToObject(vm)
	parse, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		return nil, errors.New("runtime init failed: JSON.parse unavailable")
	}
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return nil, errors.New("runtime init failed: JSON.stringify unavailable")
	}

	if spec.InitFile != "" {
		if _, err := loadFile(vm, req, scriptsDir, spec.InitFile); err != nil {
			return nil, fmt.Errorf("init script %s: %w", spec.InitFile, err)
		}
	}

	exports, err := loadFile(vm, req, scriptsDir, spec.File)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", spec.File, err)
	}
	handleVal := exports.Get("handle")
	handle, ok := goja.AssertFunction(handleVal)
	if !ok {
		return nil, errors.New("missing export handle")
	}

	return &runtime{vm: vm, handle: handle, parse: parse, stringify: stringify, log: log}, nil
}

// loadFile loads one script and returns the object carrying its
// declarations: module exports for module sources, the global object for
// classic scripts.
func loadFile(vm *goja.Runtime, req *require.RequireModule, scriptsDir, name string) (*goja.Object, error) {
	path := filepath.Join(scriptsDir, filepath.FromSlash(name))
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script failed: %w", err)
	}

	if hasModuleSyntax(string(source)) {
		// Bare names resolve through the registry's global folders, so
		// sibling imports inside the module keep working.
		v, err := req.Require(filepath.ToSlash(name))
		if err != nil {
			return nil, fmt.Errorf("module eval failed: %w", err)
		}
		return v.ToObject(vm), nil
	}

	if _, err := vm.RunScript(name, string(source)); err != nil {
		return nil, fmt.Errorf("script eval failed: %w", err)
	}
	return vm.GlobalObject(), nil
}

// moduleLoader feeds require with sources, rewriting module syntax so
// sibling imports keep working.
func moduleLoader(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, require.ModuleFileDoesNotExistError
		}
		return nil, err
	}
	src := string(data)
	if hasModuleSyntax(src) {
		src = transformModule(src)
	}
	return []byte(src), nil
}

func (rt *runtime) call(input []byte) (res result) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Error("script worker panic", "err", fmt.Sprint(r))
			res = result{err: fmt.Errorf("script execution failed: %v", r)}
		}
	}()

	arg, err := rt.parse(goja.Undefined(), rt.vm.ToValue(string(input)))
	if err != nil {
		return result{err: fmt.Errorf("deserialize input failed: %w", err)}
	}
	value, err := rt.handle(goja.Undefined(), arg)
	if err != nil {
		return result{err: fmt.Errorf("script execution failed: %w", err)}
	}
	encoded, err := rt.stringify(goja.Undefined(), value)
	if err != nil {
		return result{err: fmt.Errorf("decode output failed: %w", err)}
	}

	reply, err := decodeOutput(encoded.String())
	if err != nil {
		return result{err: err}
	}
	return result{reply: reply}
}

// decodeOutput validates the handler return value: an object with a
// string content plus optional reasoning, finish_reason, and usage.
func decodeOutput(encoded string) (oai.Reply, error) {
	var raw struct {
		Content      *string    `json:"content"`
		Reasoning    string     `json:"reasoning"`
		FinishReason string     `json:"finish_reason"`
		Usage        *oai.Usage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return oai.Reply{}, fmt.Errorf("decode output failed: %w", err)
	}
	if raw.Content == nil {
		return oai.Reply{}, errors.New("decode output failed: missing content")
	}
	reply := oai.Reply{
		Content:      *raw.Content,
		Reasoning:    raw.Reasoning,
		FinishReason: raw.FinishReason,
		Usage:        raw.Usage,
	}
	if reply.FinishReason == "" {
		reply.FinishReason = "stop"
	}
	return reply, nil
}

// slogPrinter bridges script console output into the server log.
type slogPrinter struct {
	log *slog.Logger
}

func (p slogPrinter) Log(msg string)   { p.log.Info(msg) }
func (p slogPrinter) Warn(msg string)  { p.log.Warn(msg) }
func (p slogPrinter) Error(msg string) { p.log.Error(msg) }
