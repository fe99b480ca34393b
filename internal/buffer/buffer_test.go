package buffer

import "testing"

func TestBufferAppendReset(t *testing.T) {
	b := New(2)
	b.Append(1, 2, 3)

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}

	c := b.Copy()
	b.Reset()

	if b.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", b.Len())
	}

	if b.Cap() < 3 {
		t.Fatalf("Cap() = %d, want >= 3 after reset", b.Cap())
	}

	if len(c) != 3 || c[2] != 3 {
		t.Fatalf("Copy() = %v, want [1 2 3]", c)
	}

	if b.Bytes() != int64(b.Cap())*8 {
		t.Fatalf("Bytes() = %d", b.Bytes())
	}
}

func TestNewNegativeCapacity(t *testing.T) {
	if b := New(-5); b.Cap() != 0 {
		t.Fatalf("Cap() = %d, want 0", b.Cap())
	}
}

func TestPoolReturnsEmptyBuffers(t *testing.T) {
	p := NewPool()

	b := p.Get()
	b.Append(4, 5)
	p.Put(b)
	p.Put(nil)

	again := p.Get()
	if again.Len() != 0 {
		t.Fatalf("pooled buffer not reset: len %d", again.Len())
	}
}
