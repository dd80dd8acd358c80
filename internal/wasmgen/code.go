package wasmgen

const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0b
	opBr          = 0x0c
	opBrIf        = 0x0d
	opReturn      = 0x0f
	opCall        = 0x10
	opDrop        = 0x1a
	opSelect      = 0x1b
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opF64Load     = 0x2b
	opI32Load8U   = 0x2d
	opI32Store    = 0x36
	opF64Store    = 0x39
	opI32Store8   = 0x3a
	opMemorySize  = 0x3f
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI64Const    = 0x42
	opF64Const    = 0x44
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32Ne       = 0x47
	opI32LtU      = 0x49
	opI32GtU      = 0x4b
	opI32LeU      = 0x4d
	opI32GeU      = 0x4f
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32Mul      = 0x6c
	opI32And      = 0x71
	opI32Or       = 0x72
	opI32Shl      = 0x74
	opI32ShrU     = 0x76
	opF64Add      = 0xa0
	opPrefixFC    = 0xfc

	blockEmpty = 0x40
)

// Code is a function body under construction. The trailing end opcode is
// added by Module.Encode.
type Code struct {
	w writer
}

// NewCode returns an empty body.
func NewCode() *Code {
	return &Code{}
}

func (c *Code) bytes() []byte {
	return c.w.bytes()
}

func (c *Code) op(b byte) *Code {
	c.w.byte(b)
	return c
}

func (c *Code) opIdx(b byte, idx uint32) *Code {
	c.w.byte(b)
	c.w.u32(idx)
	return c
}

// memarg writes alignment (log2) and offset.
func (c *Code) mem(b byte, align, offset uint32) *Code {
	c.w.byte(b)
	c.w.u32(align)
	c.w.u32(offset)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Block() *Code       { c.w.byte(opBlock); return c.op(blockEmpty) }
func (c *Code) Loop() *Code        { c.w.byte(opLoop); return c.op(blockEmpty) }
func (c *Code) If() *Code          { c.w.byte(opIf); return c.op(blockEmpty) }
func (c *Code) Else() *Code        { return c.op(opElse) }
func (c *Code) End() *Code         { return c.op(opEnd) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) Drop() *Code        { return c.op(opDrop) }
func (c *Code) Select() *Code      { return c.op(opSelect) }

func (c *Code) Br(depth uint32) *Code   { return c.opIdx(opBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.opIdx(opBrIf, depth) }
func (c *Code) Call(fn uint32) *Code    { return c.opIdx(opCall, fn) }

func (c *Code) LocalGet(i uint32) *Code  { return c.opIdx(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.opIdx(opLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.opIdx(opLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.opIdx(opGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.opIdx(opGlobalSet, i) }

func (c *Code) I32Load(offset uint32) *Code   { return c.mem(opI32Load, 2, offset) }
func (c *Code) I32Load8U(offset uint32) *Code { return c.mem(opI32Load8U, 0, offset) }
func (c *Code) F64Load(offset uint32) *Code   { return c.mem(opF64Load, 3, offset) }
func (c *Code) I32Store(offset uint32) *Code  { return c.mem(opI32Store, 2, offset) }
func (c *Code) I32Store8(offset uint32) *Code { return c.mem(opI32Store8, 0, offset) }
func (c *Code) F64Store(offset uint32) *Code  { return c.mem(opF64Store, 3, offset) }

func (c *Code) MemorySize() *Code { c.w.byte(opMemorySize); return c.op(0x00) }
func (c *Code) MemoryGrow() *Code { c.w.byte(opMemoryGrow); return c.op(0x00) }

// MemoryCopy copies n bytes from src to dst: [dst src n] -> [].
func (c *Code) MemoryCopy() *Code {
	c.w.byte(opPrefixFC)
	c.w.u32(10)
	c.w.byte(0x00)
	return c.op(0x00)
}

func (c *Code) I32Const(v int32) *Code {
	c.w.byte(opI32Const)
	c.w.s64(int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.byte(opI64Const)
	c.w.s64(v)
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.w.byte(opF64Const)
	c.w.f64(v)
	return c
}

func (c *Code) I32Eqz() *Code { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code  { return c.op(opI32Eq) }
func (c *Code) I32Ne() *Code  { return c.op(opI32Ne) }
func (c *Code) I32LtU() *Code { return c.op(opI32LtU) }
func (c *Code) I32GtU() *Code { return c.op(opI32GtU) }
func (c *Code) I32LeU() *Code { return c.op(opI32LeU) }
func (c *Code) I32GeU() *Code { return c.op(opI32GeU) }

func (c *Code) I32Add() *Code  { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code  { return c.op(opI32Sub) }
func (c *Code) I32Mul() *Code  { return c.op(opI32Mul) }
func (c *Code) I32And() *Code  { return c.op(opI32And) }
func (c *Code) I32Or() *Code   { return c.op(opI32Or) }
func (c *Code) I32Shl() *Code  { return c.op(opI32Shl) }
func (c *Code) I32ShrU() *Code { return c.op(opI32ShrU) }
func (c *Code) F64Add() *Code  { return c.op(opF64Add) }
