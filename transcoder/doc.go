// Package transcoder moves strings and byte arrays across the module
// boundary.
//
// Strings travel as (ptr, len) pairs of UTF-8 bytes in linear memory.
// Reading is strict: bytes that are not valid UTF-8 are a protocol error,
// not something to repair. Writing uses an optimistic ASCII pass:
//
//  1. malloc(len(s)) and copy bytes while they are ASCII
//  2. on the first non-ASCII byte, realloc to offset + 3*len(rest)
//  3. encode the rest, replacing invalid bytes with U+FFFD
//  4. realloc down to the written size
//
// The module's allocator may grow memory on any call, so every allocator
// call made through a Transcoder invalidates the memory views.
//
// Some imports return two values by writing them at a return pointer:
//
//	retptr+0  i32 ptr      (or presence flag)
//	retptr+4  i32 len
//	retptr+8  f64 payload  (optional numbers)
package transcoder
