package transcoder

import (
	"context"
	"errors"
	"strings"
	"testing"

	werrors "github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/internal/guesttest"
	"github.com/wippyai/wbg-runtime/memory"
)

func newTestTranscoder() (*Transcoder, *guesttest.Guest) {
	g := guesttest.New()
	return New(memory.New(g.Mem), g), g
}

func TestWriteString_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		reallocs int
	}{
		{"empty", "", 0},
		{"ascii", "hello world", 0},
		{"mixed", "héllo 世界", 2},
		{"leading non-ascii", "世界", 2},
		{"bom", "\ufeffdata", 2},
		{"emoji", "ok 👍", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, g := newTestTranscoder()
			ptr, n, err := tc.WriteString(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("WriteString: %v", err)
			}
			if int(n) != len(tt.in) {
				t.Errorf("len = %d, want %d", n, len(tt.in))
			}
			got, err := tc.ReadString(ptr, n)
			if err != nil {
				t.Fatalf("ReadString: %v", err)
			}
			if got != tt.in {
				t.Errorf("round trip = %q, want %q", got, tt.in)
			}
			if g.Mallocs != 1 {
				t.Errorf("mallocs = %d, want 1", g.Mallocs)
			}
			if g.Reallocs != tt.reallocs {
				t.Errorf("reallocs = %d, want %d", g.Reallocs, tt.reallocs)
			}
		})
	}
}

func TestWriteString_InvalidBytesReplaced(t *testing.T) {
	tc, _ := newTestTranscoder()
	ptr, n, err := tc.WriteString(context.Background(), "ab\xffc\xfe")
	if err != nil {
		t.Fatal(err)
	}
	got, err := tc.ReadString(ptr, n)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ab\ufffdc\ufffd" {
		t.Errorf("got %q", got)
	}
	if n != 9 {
		t.Errorf("len = %d, want 9", n)
	}
}

func TestWriteString_GrowsMemory(t *testing.T) {
	tc, g := newTestTranscoder()
	s := strings.Repeat("é", guesttest.PageSize)
	ptr, n, err := tc.WriteString(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if g.Mem.Size() <= guesttest.PageSize {
		t.Fatal("memory should have grown")
	}
	got, err := tc.ReadString(ptr, n)
	if err != nil || got != s {
		t.Fatalf("round trip failed: len %d, err %v", len(got), err)
	}
}

func TestWriteString_AllocationFailure(t *testing.T) {
	tc, g := newTestTranscoder()
	g.FailMalloc = true
	_, _, err := tc.WriteString(context.Background(), "x")
	if !errors.Is(err, werrors.AllocationFailed(werrors.PhaseMarshal, 0, nil)) {
		t.Fatalf("expected allocation error, got %v", err)
	}
	if !werrors.IsFatal(err) {
		t.Error("allocation failure should be fatal")
	}
}

func TestReadString_Strict(t *testing.T) {
	tc, g := newTestTranscoder()
	ptr, n := g.WriteString("ok\xc3\x28")

	_, err := tc.ReadString(ptr, n)
	var werr *werrors.Error
	if !errors.As(err, &werr) || werr.Kind != werrors.KindInvalidUTF8 {
		t.Fatalf("expected invalid UTF-8 error, got %v", err)
	}
	if werr.Ptr != ptr {
		t.Errorf("error ptr = %d, want %d", werr.Ptr, ptr)
	}

	if _, err := tc.ReadString(guesttest.PageSize-1, 4); err == nil {
		t.Fatal("out of range read should fail")
	}
}

func TestReadBytes_StaleAfterAllocation(t *testing.T) {
	tc, g := newTestTranscoder()
	ptr, n := g.WriteString("bytes")

	view, err := tc.ReadBytes(ptr, n)
	if err != nil {
		t.Fatal(err)
	}
	if b, err := view.Bytes(); err != nil || string(b) != "bytes" {
		t.Fatalf("view = %q, %v", b, err)
	}

	copied, _ := tc.CopyBytes(ptr, n)

	if _, _, err := tc.WriteBytes(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := view.Bytes(); !errors.Is(err, werrors.StaleView(0, 0, 0)) {
		t.Fatalf("expected stale view, got %v", err)
	}
	if string(copied) != "bytes" {
		t.Errorf("copy = %q", copied)
	}
}

func TestTypedArrays(t *testing.T) {
	tc, _ := newTestTranscoder()
	v := tc.Views()
	v.Float32().Set(64, 0.5)
	v.Float32().Set(65, -2)
	v.Int32().Set(66, 9)

	fs, err := tc.ReadFloat32s(256, 2)
	if err != nil || fs[0] != 0.5 || fs[1] != -2 {
		t.Fatalf("ReadFloat32s = %v, %v", fs, err)
	}
	is, err := tc.ReadInt32s(264, 1)
	if err != nil || is[0] != 9 {
		t.Fatalf("ReadInt32s = %v, %v", is, err)
	}
	if _, err := tc.ReadFloat32s(257, 1); err == nil {
		t.Fatal("unaligned read should fail")
	}
}

func TestRetSlots(t *testing.T) {
	ctx := context.Background()
	tc, _ := newTestTranscoder()

	if err := tc.WriteRetPair(16, 100, 7); err != nil {
		t.Fatal(err)
	}
	a, b, err := tc.ReadRetPair(16)
	if err != nil || a != 100 || b != 7 {
		t.Fatalf("ReadRetPair = %d, %d, %v", a, b, err)
	}

	if err := tc.WriteRetOptionF64(32, 2.5, true); err != nil {
		t.Fatal(err)
	}
	if flag := tc.Views().Int32().Get(8); flag != 1 {
		t.Errorf("flag = %d", flag)
	}
	if x := tc.Views().Float64().Get(5); x != 2.5 {
		t.Errorf("value = %v", x)
	}
	if err := tc.WriteRetOptionF64(32, 9, false); err != nil {
		t.Fatal(err)
	}
	if flag, x := tc.Views().Int32().Get(8), tc.Views().Float64().Get(5); flag != 0 || x != 0 {
		t.Errorf("absent = %d, %v", flag, x)
	}

	if err := tc.WriteRetString(ctx, 48, "text", true); err != nil {
		t.Fatal(err)
	}
	p, n, _ := tc.ReadRetPair(48)
	if s, _ := tc.ReadString(p, n); s != "text" {
		t.Errorf("ret string = %q", s)
	}
	if err := tc.WriteRetString(ctx, 48, "", false); err != nil {
		t.Fatal(err)
	}
	if p, n, _ := tc.ReadRetPair(48); p != 0 || n != 0 {
		t.Errorf("absent string = %d, %d", p, n)
	}

	if err := tc.WriteRetPair(18, 1, 1); err == nil {
		t.Error("unaligned ret slot should fail")
	}
}
