package protocol

import (
	"errors"
	"io"
	"runtime"
	"testing"
)

func nestedNode(depth int) *Node {
	n := NewNode("leaf")
	for i := 1; i < depth; i++ {
		n = NewNode("item").Children(n)
	}
	return n
}

func TestDepthLimits(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		maxDepth int
		wantErr  bool
	}{
		{"well under limit", 10, DefaultMaxDepth, false},
		{"at limit", DefaultMaxDepth, DefaultMaxDepth, false},
		{"exceeds limit", DefaultMaxDepth + 1, DefaultMaxDepth, true},
		{"custom ceiling", 9, 8, true},
		{"raised ceiling", 500, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(nestedNode(tt.depth))
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			_, err = DecodeWithLimits(data, DecodeLimits{MaxDepth: tt.maxDepth})
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeWithLimits(depth=%d, max=%d) error = %v, wantErr %v", tt.depth, tt.maxDepth, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrMaxDepthExceeded) {
				t.Fatalf("error = %v, want ErrMaxDepthExceeded", err)
			}
		})
	}
}

func TestHostileNestingDoesNotExhaustStack(t *testing.T) {
	// Each level is [List8, 2, tag, List8, 1] with the final child closing it.
	var data []byte
	const levels = 100000
	for i := 0; i < levels; i++ {
		data = append(data, List8, 2, 1, List8, 1)
	}
	data = append(data, List8, 1, 1)

	_, err := Decode(data)
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Fatalf("Decode(hostile) error = %v, want ErrMaxDepthExceeded", err)
	}
}

func TestAllocationLimits(t *testing.T) {
	payload := make([]byte, 0, 2048)
	payload = append(payload, List8, 2, 1, Binary20, 0x00, 0x04, 0x00)
	payload = append(payload, make([]byte, 1024)...)

	if _, err := Decode(payload); err != nil {
		t.Fatalf("Decode() under default limit error = %v", err)
	}

	_, err := DecodeWithLimits(payload, DecodeLimits{MaxAllocation: 512})
	if !errors.Is(err, ErrAllocationTooLarge) {
		t.Fatalf("DecodeWithLimits() error = %v, want ErrAllocationTooLarge", err)
	}
}

func TestOversizedCountsFailBeforeAllocating(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"attribute count", []byte{List16, 0xFF, 0xFF, 1}},
		{"attribute count with a few attrs", []byte{List16, 0x01, 0x01, 1, 2, 3, 4, 5}},
		{"child count", []byte{List8, 2, 1, List16, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			var err error
			for i := 0; i < 100; i++ {
				_, err = Decode(tt.data)
			}
			runtime.ReadMemStats(&after)
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("Decode() error = %v, want io.ErrUnexpectedEOF", err)
			}
			if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
				t.Fatalf("100 decodes of a %d byte input allocated %d bytes", len(tt.data), grew)
			}
		})
	}
}

func TestLimitsNormalized(t *testing.T) {
	l := DecodeLimits{MaxAllocation: HardMaxAllocation * 2}.normalized()
	if l.MaxDepth != DefaultMaxDepth {
		t.Errorf("MaxDepth = %d, want %d", l.MaxDepth, DefaultMaxDepth)
	}
	if l.MaxAllocation != HardMaxAllocation {
		t.Errorf("MaxAllocation = %d, want %d", l.MaxAllocation, HardMaxAllocation)
	}
}
