package core

// TaskDomain selects the execution engine class a task targets.
type TaskDomain int

const (
	// DomainCPUAll runs on either CPU cluster; the only domain whose tasks
	// may migrate between the big and LITTLE pools.
	DomainCPUAll TaskDomain = iota

	// DomainCPUBig pins the task to the big-cluster pool.
	DomainCPUBig

	// DomainCPULittle pins the task to the LITTLE-cluster pool.
	DomainCPULittle

	// DomainDSP hands the task to the DSP backend driver.
	DomainDSP

	// DomainGPU hands the task to the GPU backend driver.
	DomainGPU

	numDomains
)

func (d TaskDomain) String() string {
	switch d {
	case DomainCPUAll:
		return "cpu_all"
	case DomainCPUBig:
		return "cpu_big"
	case DomainCPULittle:
		return "cpu_little"
	case DomainDSP:
		return "dsp"
	case DomainGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// valid reports whether d is a member of the closed domain set.
func (d TaskDomain) valid() bool {
	return d >= DomainCPUAll && d < numDomains
}

// compatible reports whether a task targeting d may execute on a worker
// bound to pool domain pd. cpu_all tasks run on either CPU cluster; pinned
// CPU tasks and device tasks only on their own pool.
func (d TaskDomain) compatible(pd TaskDomain) bool {
	if d == DomainCPUAll {
		return pd == DomainCPUBig || pd == DomainCPULittle
	}
	return d == pd
}

// ThreadType classifies the thread a storage or submission call originates
// from.
type ThreadType int

const (
	// ThreadForeign is any thread not created or registered by the runtime.
	ThreadForeign ThreadType = iota

	// ThreadMain is the thread that initialized the scheduler.
	ThreadMain

	// ThreadWorker is a device worker owned by a scheduler pool.
	ThreadWorker
)

func (t ThreadType) String() string {
	switch t {
	case ThreadForeign:
		return "foreign"
	case ThreadMain:
		return "main"
	case ThreadWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// ThreadRecord carries per-thread runtime state: the thread's type and its
// thread-local storage map. Worker loops own one for their lifetime; main
// and foreign threads get one from scheduler registration or BindThread.
type ThreadRecord struct {
	threadType ThreadType
	storage    StorageMap
}

// NewThreadRecord creates a record for a thread of the given type.
func NewThreadRecord(tt ThreadType) *ThreadRecord {
	return &ThreadRecord{threadType: tt}
}

// Type returns the thread's classification.
func (tr *ThreadRecord) Type() ThreadType { return tr.threadType }

// Storage returns the thread-local storage map. Only the owning thread may
// touch it.
func (tr *ThreadRecord) Storage() *StorageMap { return &tr.storage }

// Terminate runs the thread-local storage destructors. Called exactly once,
// by the owning thread, when it exits or unbinds.
func (tr *ThreadRecord) Terminate() int {
	return tr.storage.runDestructors()
}
