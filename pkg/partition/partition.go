// Package partition implements the partition validator (C8): a
// priority-ordered chain of skimmers that filter candidate resource
// partitions for a task-graph workload, plus the immutable Partition value
// itself.
package partition

// TaskGraph is the opaque handle threaded through the skimmer chain.
// Task-graph serialization and the full task/buffer topology are a
// programming-model binding concern (out of scope for the core); the
// validator only needs a stable identifier to pass to each skimmer.
type TaskGraph struct {
	ID string
}

// Partition is a fully resolved mapping of a task-graph to physical
// resources: a cluster id, two skimmer-assigned feasibility scores, and
// the task/buffer placement maps. Immutable once built; scores and
// placement maps are set by the skimmers that produced it.
type Partition struct {
	id        uint32
	clusterID uint32
	mmScore   int8
	pmScore   int8

	taskUnit   map[int]int
	bufferBank map[int]int
	kernelAddr map[int]int
	kernelBank map[int]int
	bufferAddr map[int]int
}

// New returns an empty partition with the given id and cluster id.
func New(id, clusterID uint32) *Partition {
	return &Partition{
		id:         id,
		clusterID:  clusterID,
		taskUnit:   make(map[int]int),
		bufferBank: make(map[int]int),
		kernelAddr: make(map[int]int),
		kernelBank: make(map[int]int),
		bufferAddr: make(map[int]int),
	}
}

func (p *Partition) ID() uint32        { return p.id }
func (p *Partition) ClusterID() uint32 { return p.clusterID }

// MMScore / PMScore are the [0,100] feasibility scores set by the memory
// manager and power manager skimmers respectively. 0 means infeasible.
func (p *Partition) MMScore() int8 { return p.mmScore }
func (p *Partition) PMScore() int8 { return p.pmScore }

func (p *Partition) SetMMScore(score int8) { p.mmScore = clampScore(score) }
func (p *Partition) SetPMScore(score int8) { p.pmScore = clampScore(score) }

func clampScore(s int8) int8 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// MapTask records which processing unit a task is mapped to.
func (p *Partition) MapTask(taskID, unit int) { p.taskUnit[taskID] = unit }

// GetUnit returns the processing unit a task is mapped to.
func (p *Partition) GetUnit(taskID int) (int, bool) {
	u, ok := p.taskUnit[taskID]
	return u, ok
}

// MapBuffer records which memory bank and address a buffer is mapped to.
func (p *Partition) MapBuffer(bufferID, bank, addr int) {
	p.bufferBank[bufferID] = bank
	p.bufferAddr[bufferID] = addr
}

// MapKernel records the memory bank and address of a task's kernel image.
func (p *Partition) MapKernel(taskID, bank, addr int) {
	p.kernelBank[taskID] = bank
	p.kernelAddr[taskID] = addr
}
