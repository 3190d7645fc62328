package persistence

// MemoryDSN opens a database that lives exactly as long as its store.
const MemoryDSN = ":memory:"

// JobCounts is a status histogram over stored jobs.
type JobCounts map[string]int

func (c JobCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
