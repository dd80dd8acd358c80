package transcoder

import (
	"context"

	"github.com/wippyai/wbg-runtime/errors"
)

func checkRetptr(t *Transcoder, retptr, size uint32) error {
	if retptr%4 != 0 {
		return errors.New(errors.PhaseMarshal, errors.KindInvalidData).
			Ptr(retptr).Detail("return slot is not 4-byte aligned").Build()
	}
	_, err := t.views.Range(retptr, size)
	return err
}

// WriteRetPair stores two i32 values at retptr and retptr+4.
func (t *Transcoder) WriteRetPair(retptr, first, second uint32) error {
	if err := checkRetptr(t, retptr, 8); err != nil {
		return err
	}
	v := t.views.Int32()
	v.Set(retptr/4, int32(first))
	v.Set(retptr/4+1, int32(second))
	return nil
}

// ReadRetPair loads the two i32 values at retptr.
func (t *Transcoder) ReadRetPair(retptr uint32) (uint32, uint32, error) {
	if err := checkRetptr(t, retptr, 8); err != nil {
		return 0, 0, err
	}
	v := t.views.Int32()
	return uint32(v.Get(retptr / 4)), uint32(v.Get(retptr/4 + 1)), nil
}

// WriteRetOptionF64 stores an optional number: the presence flag as i32 at
// retptr and the value as f64 at retptr+8 (0 when absent).
func (t *Transcoder) WriteRetOptionF64(retptr uint32, x float64, ok bool) error {
	if err := checkRetptr(t, retptr, 16); err != nil {
		return err
	}
	if retptr%8 != 0 {
		return errors.New(errors.PhaseMarshal, errors.KindInvalidData).
			Ptr(retptr).Detail("f64 return slot is not 8-byte aligned").Build()
	}
	var flag int32
	if ok {
		flag = 1
	} else {
		x = 0
	}
	t.views.Float64().Set(retptr/8+1, x)
	t.views.Int32().Set(retptr/4, flag)
	return nil
}

// WriteRetString stores s in module memory and writes its (ptr, len) at
// retptr. When ok is false the pair is (0, 0) and nothing is allocated.
func (t *Transcoder) WriteRetString(ctx context.Context, retptr uint32, s string, ok bool) error {
	var ptr, n uint32
	if ok {
		var err error
		ptr, n, err = t.WriteString(ctx, s)
		if err != nil {
			return err
		}
	}
	return t.WriteRetPair(retptr, ptr, n)
}
