package protocol

// Limits applied while decoding untrusted input.
const (
	// DefaultMaxDepth bounds node nesting. Real traffic rarely goes past 8.
	DefaultMaxDepth = 64

	// DefaultMaxAllocation caps any single string or byte run (4MB).
	DefaultMaxAllocation = 4 * 1024 * 1024

	// HardMaxAllocation is the ceiling even when configured higher (64MB).
	HardMaxAllocation = 64 * 1024 * 1024

	// MaxListCount is the largest count LIST_16 can carry.
	MaxListCount = 0xFFFF
)

// DecodeLimits configures a decode call.
// Use DefaultDecodeLimits() for sensible defaults.
type DecodeLimits struct {
	// MaxDepth is the deepest node nesting accepted.
	MaxDepth int

	// MaxAllocation is the largest string or byte run accepted.
	MaxAllocation int
}

// DefaultDecodeLimits returns the default limits.
func DefaultDecodeLimits() DecodeLimits {
	return DecodeLimits{
		MaxDepth:      DefaultMaxDepth,
		MaxAllocation: DefaultMaxAllocation,
	}
}

func (l DecodeLimits) normalized() DecodeLimits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxAllocation <= 0 {
		l.MaxAllocation = DefaultMaxAllocation
	}
	if l.MaxAllocation > HardMaxAllocation {
		l.MaxAllocation = HardMaxAllocation
	}
	return l
}

// depthContext tracks the current decoding depth for recursive structures.
type depthContext struct {
	current int
	max     int
}

func newDepthContext(max int) *depthContext {
	return &depthContext{max: max}
}

// enter increments the depth and returns an error if the limit would be exceeded.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepthExceeded
	}
	dc.current++
	return nil
}

func (dc *depthContext) leave() {
	dc.current--
}
