package closure

import (
	"fmt"

	"github.com/wippyai/wbg-runtime/errors"
)

// ArgKind describes how a host argument is passed to a thunk.
type ArgKind uint8

const (
	// ArgHandle arguments are stored in the handle table and passed as i32.
	ArgHandle ArgKind = iota
	// ArgI32 arguments are passed as raw i32.
	ArgI32
	// ArgF64 arguments are passed as raw f64.
	ArgF64
)

// Signature names the module export that invokes a closure and the shape of
// its arguments after (a, b).
type Signature struct {
	Export string
	Args   []ArgKind
	// Returns is true when the thunk returns a handle.
	Returns bool
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%d", s.Export, len(s.Args))
}

// Built-in thunk signatures. Their ids in a new Registry are 0 through 4.
var (
	Invoke0      = Signature{Export: "__wbindgen_invoke_0"}
	Invoke1      = Signature{Export: "__wbindgen_invoke_1", Args: []ArgKind{ArgHandle}}
	Invoke2      = Signature{Export: "__wbindgen_invoke_2", Args: []ArgKind{ArgHandle, ArgHandle}}
	InvokeF64    = Signature{Export: "__wbindgen_invoke_f64", Args: []ArgKind{ArgF64}}
	InvokeReturn = Signature{Export: "__wbindgen_invoke_ret_1", Args: []ArgKind{ArgHandle}, Returns: true}
)

// Registry maps the signature ids module code passes to
// __wbindgen_closure_new onto signatures.
type Registry struct {
	sigs []Signature
}

// NewRegistry returns a registry holding the built-in signatures.
func NewRegistry() *Registry {
	return &Registry{sigs: []Signature{Invoke0, Invoke1, Invoke2, InvokeF64, InvokeReturn}}
}

// Register adds sig and returns its id.
func (r *Registry) Register(sig Signature) uint32 {
	r.sigs = append(r.sigs, sig)
	return uint32(len(r.sigs) - 1)
}

// Lookup returns the signature with the given id.
func (r *Registry) Lookup(id uint32) (Signature, error) {
	if int(id) >= len(r.sigs) {
		return Signature{}, errors.New(errors.PhaseClosure, errors.KindNotFound).
			Detail("unknown closure signature %d", id).Build()
	}
	return r.sigs[id], nil
}

// Exports lists the thunk export names of all registered signatures.
func (r *Registry) Exports() []string {
	out := make([]string, 0, len(r.sigs))
	for _, s := range r.sigs {
		out = append(out, s.Export)
	}
	return out
}
