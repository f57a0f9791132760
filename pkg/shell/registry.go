package shell

const (
	registryGrowthFactor = 2
)

// processRegistry is a growable list of tracked child PIDs, used both
// per-pipeline (to wait on a foreground chain) and at shell scope (to
// track and reap background jobs).
//
// A registry always owns its backing slice unconditionally: releasing
// it never depends on inspecting the stored values, only on whether
// Close has already run.
type processRegistry struct {
	pids   []int
	floor  int
	closed bool
}

func newProcessRegistry(floor int) *processRegistry {
	if floor <= 0 {
		floor = 10
	}
	return &processRegistry{
		pids:  make([]int, 0, floor),
		floor: floor,
	}
}

// Register tracks a new child PID.
func (r *processRegistry) Register(pid int) {
	r.pids = append(r.pids, pid)
	r.adjustCapacity()
}

// adjustCapacity enforces a shrink-below-half-with-a-floor rule on top
// of append's amortized growth, so a registry that briefly held many
// PIDs doesn't keep that capacity forever.
func (r *processRegistry) adjustCapacity() {
	capacity := cap(r.pids)
	size := len(r.pids)

	if size*registryGrowthFactor < capacity && size > r.floor {
		target := capacity / registryGrowthFactor
		if target < r.floor {
			target = r.floor
		}
		shrunk := make([]int, size, target)
		copy(shrunk, r.pids)
		r.pids = shrunk
	}
}

// CheckCompleted does a non-blocking sweep, removing any PID whose child
// has already exited, and reports how many were reaped.
func (r *processRegistry) CheckCompleted(reap func(pid int) (done bool)) int {
	reaped := 0
	kept := r.pids[:0]
	for _, pid := range r.pids {
		if reap(pid) {
			reaped++
			continue
		}
		kept = append(kept, pid)
	}
	r.pids = kept
	r.adjustCapacity()
	return reaped
}

// WaitAndFree blocks on every tracked PID via wait, then closes the
// registry. It returns the exit status reported by the last waited
// child that exited normally, which is a chained pipeline's final
// status.
func (r *processRegistry) WaitAndFree(wait func(pid int) (exitCode int, exited bool)) int {
	finalStatus := 0
	for _, pid := range r.pids {
		if code, exited := wait(pid); exited {
			finalStatus = code
		}
	}
	r.Close()
	return finalStatus
}

// Close releases the registry's backing storage. Safe to call more than
// once.
func (r *processRegistry) Close() {
	if r.closed {
		return
	}
	r.pids = nil
	r.closed = true
}

// Len reports how many PIDs are currently tracked.
func (r *processRegistry) Len() int {
	return len(r.pids)
}
