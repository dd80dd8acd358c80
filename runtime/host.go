package runtime

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/wbg-runtime/engine"
	"github.com/wippyai/wbg-runtime/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace and CatchFunctions) are registered
// as host functions.
type Host interface {
	// Namespace returns the import module name (usually "wbg").
	Namespace() string
}

// CatchingHost extends Host with catching imports. Failures of the listed
// functions are stored in the module's exception register instead of
// trapping.
type CatchingHost interface {
	Host
	CatchFunctions() []string
}

// ExplicitRegistrar allows hosts to provide exact import names when the
// automatic method name conversion doesn't apply
// (e.g., "__wbg_fetch_5a2b1f3e9c7d4b6a").
type ExplicitRegistrar interface {
	Register() map[string]any
}

type HostRegistry struct {
	funcs map[string]map[string]*HostFunc
	bound map[string]bool
	mu    sync.RWMutex
}

type HostFunc struct {
	Handler  any
	Catching bool
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]*HostFunc),
		bound: make(map[string]bool),
	}
}

func (r *HostRegistry) add(ns, name string, hf *HostFunc) error {
	if r.bound[ns] {
		return errors.New(errors.PhaseHost, errors.KindClosed).
			Detail("namespace %q is already bound; register hosts before loading modules", ns).
			Build()
	}
	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]*HostFunc)
	}
	if _, dup := r.funcs[ns][name]; dup {
		return errors.New(errors.PhaseHost, errors.KindRegistration).
			Detail("%s#%s registered twice", ns, name).
			Build()
	}
	r.funcs[ns][name] = hf
	return nil
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	catching := make(map[string]bool)
	if ch, ok := h.(CatchingHost); ok {
		for _, name := range ch.CatchFunctions() {
			catching[name] = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if er, ok := h.(ExplicitRegistrar); ok {
		funcs := er.Register()
		for name, handler := range funcs {
			hf := &HostFunc{
				Handler:  handler,
				Catching: catching[name],
			}
			if err := r.add(ns, name, hf); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()

	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)

		if !method.IsExported() || method.Name == "Namespace" || method.Name == "CatchFunctions" {
			continue
		}

		name := importName(method.Name)
		hf := &HostFunc{
			Handler:  rv.Method(i).Interface(),
			Catching: catching[name],
		}
		if err := r.add(ns, name, hf); err != nil {
			return err
		}
	}

	return nil
}

func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	return r.register(namespace, name, fn, false)
}

// RegisterFuncCatching registers a single catching import.
func (r *HostRegistry) RegisterFuncCatching(namespace, name string, fn any) error {
	return r.register(namespace, name, fn, true)
}

func (r *HostRegistry) register(namespace, name string, fn any, catching bool) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(reflect.TypeOf(fn).String()).
			Detail("handler must be a function").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.add(namespace, name, &HostFunc{Handler: fn, Catching: catching})
}

// Lookup returns the function registered as namespace#name.
func (r *HostRegistry) Lookup(namespace, name string) (*HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hf, ok := r.funcs[namespace][name]
	return hf, ok
}

// Namespaces returns the registered namespaces, sorted.
func (r *HostRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Bind defines a host module in eng for every namespace not bound yet.
// Bound namespaces are closed to further registration.
func (r *HostRegistry) Bind(ctx context.Context, eng *engine.Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for namespace, funcs := range r.funcs {
		if r.bound[namespace] {
			continue
		}
		hfs := make([]engine.HostFunc, 0, len(funcs))
		for name, hf := range funcs {
			hfs = append(hfs, engine.HostFunc{
				Namespace: namespace,
				Name:      name,
				Handler:   hf.Handler,
				Catching:  hf.Catching,
			})
		}
		if err := eng.DefineHostModule(ctx, namespace, hfs); err != nil {
			return err
		}
		r.bound[namespace] = true
	}
	return nil
}

// importName converts a PascalCase method name to a wbg import name.
// Handles acronyms: LocalStorageGet -> __wbg_local_storage_get,
// FetchURL -> __wbg_fetch_url
func importName(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder
	result.WriteString("__wbg_")

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
