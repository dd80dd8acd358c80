package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseMarshal   Phase = "marshal"   // linear memory <-> Go values
	PhaseHandle    Phase = "handle"    // handle table operations
	PhaseClosure   Phase = "closure"   // closure bridging
	PhaseHost      Phase = "host"      // host function registration and calls
	PhaseModule    Phase = "module"    // values raised by module code
	PhaseEventLoop Phase = "eventloop" // task scheduling
	PhaseRuntime   Phase = "runtime"   // runtime operations
	PhaseLinking   Phase = "linking"   // import/export resolution
	PhaseLoad      Phase = "load"      // module loading
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch   Kind = "type_mismatch"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidData    Kind = "invalid_data"
	KindUnsupported    Kind = "unsupported"
	KindAllocation     Kind = "allocation"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindInvalidHandle  Kind = "invalid_handle"
	KindDoubleFree     Kind = "double_free"
	KindStaleView      Kind = "stale_view"
	KindFinalized      Kind = "finalized"
	KindReentrant      Kind = "reentrant"
	KindThrown         Kind = "thrown"
	KindFatal          Kind = "fatal"
	KindMissingImport  Kind = "missing_import"
	KindMissingExport  Kind = "missing_export"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindClosed         Kind = "closed"
	KindIO             Kind = "io"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WasmType string
	Detail   string
	Handle   uint32
	Ptr      uint32
	HasPtr   bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Handle != 0 {
		fmt.Fprintf(&b, " at handle %d", e.Handle)
	} else if e.HasPtr {
		fmt.Fprintf(&b, " at 0x%x", e.Ptr)
	}

	if e.GoType != "" || e.WasmType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.WasmType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", wasm type ")
			b.WriteString(e.WasmType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("wasm type ")
			b.WriteString(e.WasmType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WasmType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the offending handle
func (b *Builder) Handle(h uint32) *Builder {
	b.err.Handle = h
	return b
}

// Ptr sets the offending linear memory address
func (b *Builder) Ptr(p uint32) *Builder {
	b.err.Ptr = p
	b.err.HasPtr = true
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WasmType sets the wasm value type name
func (b *Builder) WasmType(t string) *Builder {
	b.err.WasmType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, goType, wasmType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		GoType:   goType,
		WasmType: wasmType,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, ptr uint32, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Ptr:    ptr,
		HasPtr: true,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, ptr, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Ptr:    ptr,
		HasPtr: true,
		Detail: fmt.Sprintf("range of %d bytes exceeds memory size %d", length, size),
	}
}

// InvalidHandle creates an error for a handle that does not denote a live slot
func InvalidHandle(h uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindInvalidHandle,
		Handle: h,
		Detail: detail,
	}
}

// DoubleFree creates an error for releasing an already released handle
func DoubleFree(h uint32) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindDoubleFree,
		Handle: h,
		Detail: "slot already released",
	}
}

// StaleView creates an error for a memory view used after the memory changed
func StaleView(ptr uint32, viewGen, currentGen uint64) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindStaleView,
		Ptr:    ptr,
		HasPtr: true,
		Detail: fmt.Sprintf("view generation %d, memory generation %d", viewGen, currentGen),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExport creates an error for a required module export that is absent
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("module does not export %q", name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Thrown creates the error raised when module code calls __wbindgen_throw.
func Thrown(msg string) *Error {
	return &Error{
		Phase:  PhaseModule,
		Kind:   KindThrown,
		Detail: msg,
	}
}

// Fatal creates an unrecoverable module error.
func Fatal(msg string) *Error {
	return &Error{
		Phase:  PhaseModule,
		Kind:   KindFatal,
		Detail: msg,
	}
}

// IsFatal reports whether err breaks the boundary contract and must abort the
// current module call instead of being stored as a host exception.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindInvalidUTF8, KindInvalidHandle, KindDoubleFree, KindStaleView,
		KindOutOfBounds, KindAllocation, KindThrown, KindFatal, KindNotInitialized:
		return true
	}
	return false
}

// Exception carries a host value re-raised across the module boundary
// unchanged (__wbindgen_rethrow). Value keeps its original identity.
type Exception struct {
	Value any
}

func (e *Exception) Error() string {
	if err, ok := e.Value.(error); ok {
		return "uncaught exception: " + err.Error()
	}
	return fmt.Sprintf("uncaught exception: %v", e.Value)
}

// Unwrap exposes the carried value when it is itself an error.
func (e *Exception) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module   string // e.g., "wbg"
	Function string // e.g., "__wbg_now_9c3c00f027cd0272"
}

// MissingImportsError is returned when instantiation fails due to missing host functions
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module:   mod,
			Function: fn,
		})
	}
	return result
}

func parseImportKey(key string) (module, function string) {
	mod, fn, found := strings.Cut(key, "#")
	if found {
		return mod, fn
	}
	return key, ""
}

// TrimBindgenHash strips the 16 hex digit disambiguation suffix that binding
// generators append to import names (__wbg_now_9c3c00f027cd0272 -> __wbg_now).
func TrimBindgenHash(name string) string {
	i := strings.LastIndexByte(name, '_')
	if i < 0 || len(name)-i-1 != 16 {
		return name
	}
	for _, c := range name[i+1:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return name
		}
	}
	return name[:i]
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[linking] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	// Group by module for cleaner output
	byMod := make(map[string][]string)
	var modOrder []string
	for _, imp := range e.Imports {
		if _, exists := byMod[imp.Module]; !exists {
			modOrder = append(modOrder, imp.Module)
		}
		byMod[imp.Module] = append(byMod[imp.Module], imp.Function)
	}

	for _, mod := range modOrder {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byMod[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			if short := TrimBindgenHash(fn); short != fn {
				b.WriteString(" (")
				b.WriteString(short)
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
