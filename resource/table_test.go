package resource

import (
	"errors"
	"math/rand"
	"testing"

	werrors "github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/value"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Put("test")
	if h != FirstFree {
		t.Fatalf("first handle = %d, want %d", h, FirstFree)
	}

	val, err := table.Get(h)
	if err != nil || val != "test" {
		t.Fatalf("Get = %v, %v", val, err)
	}

	val, err = table.Take(h)
	if err != nil || val != "test" {
		t.Fatalf("Take = %v, %v", val, err)
	}
	if table.Len() != 0 {
		t.Fatal("expected Len() == 0 after Take")
	}
	if _, err := table.Get(h); !errors.Is(err, werrors.InvalidHandle(0, "")) {
		t.Fatalf("Get after Take: %v", err)
	}
}

func TestTable_ReuseOrder(t *testing.T) {
	table := NewTable()

	a := table.Put("a")
	b := table.Put("b")
	if a != 132 || b != 133 {
		t.Fatalf("handles = %d, %d", a, b)
	}
	if err := table.Drop(a); err != nil {
		t.Fatal(err)
	}
	c := table.Put("c")
	if c != 132 {
		t.Fatalf("reused handle = %d, want 132", c)
	}
	if v, _ := table.Get(b); v != "b" {
		t.Fatalf("b = %v", v)
	}

	table.Drop(b)
	table.Drop(c)
	if h := table.Put("d"); h != c {
		t.Fatalf("most recently released slot should be reused first, got %d", h)
	}
	if h := table.Put("e"); h != b {
		t.Fatalf("then the previous one, got %d", h)
	}
	if h := table.Put("f"); h != 134 {
		t.Fatalf("empty free list should append, got %d", h)
	}
}

func TestTable_Sentinels(t *testing.T) {
	table := NewTable()

	tests := []struct {
		h    Handle
		want any
	}{
		{0, value.Undefined},
		{127, value.Undefined},
		{HandleUndefined, value.Undefined},
		{HandleNull, value.Null},
		{HandleTrue, true},
		{HandleFalse, false},
	}
	for _, tt := range tests {
		got, err := table.Get(tt.h)
		if err != nil || got != tt.want {
			t.Errorf("Get(%d) = %v, %v; want %v", tt.h, got, err, tt.want)
		}
		if err := table.Drop(tt.h); err != nil {
			t.Errorf("Drop(%d) = %v, want no-op", tt.h, err)
		}
		if got, _ := table.Get(tt.h); got != tt.want {
			t.Errorf("Drop(%d) should not clear the slot", tt.h)
		}
	}

	v, err := table.Take(HandleNull)
	if err != nil || v != value.Null {
		t.Fatalf("Take(null) = %v, %v", v, err)
	}
	if h := table.Put(true); h < FirstFree {
		t.Fatalf("Put returned reserved handle %d", h)
	}
}

func TestTable_DoubleFree(t *testing.T) {
	table := NewTable()
	a := table.Put("a")
	b := table.Put("b")
	table.Drop(a)

	err := table.Drop(a)
	if !errors.Is(err, werrors.DoubleFree(0)) {
		t.Fatalf("expected double free, got %v", err)
	}

	// The free list must still hold exactly one entry: a.
	if h := table.Put("x"); h != a {
		t.Fatalf("Put = %d, want %d", h, a)
	}
	if h := table.Put("y"); h != b+1 {
		t.Fatalf("Put = %d, want %d", h, b+1)
	}

	if err := table.Drop(5000); !errors.Is(err, werrors.InvalidHandle(0, "")) {
		t.Fatalf("out of range drop: %v", err)
	}
}

func TestTable_Clone(t *testing.T) {
	table := NewTable()
	obj := value.NewObject()
	h := table.Put(obj)
	c, err := table.Clone(h)
	if err != nil || c == h {
		t.Fatalf("Clone = %d, %v", c, err)
	}
	table.Drop(h)
	v, err := table.Get(c)
	if err != nil || v != obj {
		t.Fatal("clone should outlive the original handle")
	}
	if _, err := table.Clone(h); err == nil {
		t.Fatal("cloning a released handle should fail")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	unsubscribe := table.Subscribe(obs)

	h := table.Put("x")
	table.Drop(h)
	table.Drop(HandleNull)

	if len(obs.events) != 2 {
		t.Fatalf("events = %d, want 2", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Errorf("first event = %+v", obs.events[0])
	}
	if obs.events[1].Type != EventDropped || obs.events[1].Value != "x" {
		t.Errorf("second event = %+v", obs.events[1])
	}

	unsubscribe()
	unsubscribe()
	table.Put("y")
	if len(obs.events) != 2 {
		t.Fatal("unsubscribed observer should not receive events")
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable()
	var first, second int
	stopFirst := table.Subscribe(ObserverFunc(func(Event) { first++ }))
	table.Subscribe(ObserverFunc(func(Event) { second++ }))

	table.Put("a")
	stopFirst()
	table.Put("b")

	if first != 1 || second != 2 {
		t.Fatalf("first = %d second = %d", first, second)
	}
}

func TestTable_DropReleasesDropper(t *testing.T) {
	tests := []struct {
		name  string
		run   func(t *testing.T, table *Table, d *dropCounter)
		drops int
	}{
		{"drop", func(t *testing.T, table *Table, d *dropCounter) {
			table.Drop(table.Put(d))
		}, 1},
		{"clone keeps value alive", func(t *testing.T, table *Table, d *dropCounter) {
			h := table.Put(d)
			c, _ := table.Clone(h)
			table.Drop(h)
			if d.drops != 0 {
				t.Errorf("dropped while a clone is live")
			}
			table.Drop(c)
		}, 1},
		{"take hands over ownership", func(t *testing.T, table *Table, d *dropCounter) {
			table.Take(table.Put(d))
		}, 0},
		{"double free drops once", func(t *testing.T, table *Table, d *dropCounter) {
			h := table.Put(d)
			table.Drop(h)
			table.Drop(h)
		}, 1},
		{"clear does not drop", func(t *testing.T, table *Table, d *dropCounter) {
			table.Put(d)
			table.Clear()
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewTable()
			d := &dropCounter{}
			tt.run(t, table, d)
			if d.drops != tt.drops {
				t.Fatalf("drops = %d, want %d", d.drops, tt.drops)
			}
		})
	}
}

func TestTable_CloseDrops(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	h := table.Put(d)
	table.Put("plain")
	table.Clone(h)

	var seen []Handle
	table.Each(func(h Handle, _ any) bool {
		seen = append(seen, h)
		return true
	})
	if len(seen) != 3 || seen[0] != FirstFree {
		t.Fatalf("Each = %v", seen)
	}

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	if d.drops != 1 {
		t.Fatalf("drops = %d, want 1", d.drops)
	}
	if table.Len() != 0 {
		t.Fatal("table should be empty after Close")
	}
	if h := table.Put("again"); h != FirstFree {
		t.Fatalf("Put after Close = %d", h)
	}
}

func TestLookup(t *testing.T) {
	table := NewTable()
	h := table.Put(&value.Uint8Array{Data: []byte{1}})

	arr, err := Lookup[*value.Uint8Array](table, h)
	if err != nil || arr.Data[0] != 1 {
		t.Fatalf("Lookup = %v, %v", arr, err)
	}
	_, err = Lookup[string](table, h)
	var werr *werrors.Error
	if !errors.As(err, &werr) || werr.Kind != werrors.KindTypeMismatch {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

// Random put/drop sequences must keep every live handle distinct, never hand
// out a reserved index, and keep Len in step with a shadow map.
func TestTable_FreeListProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	table := NewTable()
	live := make(map[Handle]int)

	for i := 0; i < 5000; i++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			h := table.Put(i)
			if h < FirstFree {
				t.Fatalf("step %d: reserved handle %d", i, h)
			}
			if _, dup := live[h]; dup {
				t.Fatalf("step %d: handle %d handed out twice", i, h)
			}
			live[h] = i
			continue
		}
		var victim Handle
		for h := range live {
			victim = h
			break
		}
		v, err := table.Take(victim)
		if err != nil || v != live[victim] {
			t.Fatalf("step %d: Take(%d) = %v, %v", i, victim, v, err)
		}
		delete(live, victim)
	}

	if table.Len() != len(live) {
		t.Fatalf("Len = %d, want %d", table.Len(), len(live))
	}
	for h, want := range live {
		if got, _ := table.Get(h); got != want {
			t.Fatalf("Get(%d) = %v, want %d", h, got, want)
		}
	}
}
