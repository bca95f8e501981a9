package amm

// Snapshot is the pool state read once, before any transfer of the current
// operation lands. It has no refresh method; every computation of one
// operation receives the same value.
type Snapshot struct {
	reserveA uint64
	reserveB uint64
	supply   uint64
}

func NewSnapshot(reserveA, reserveB, supply uint64) Snapshot {
	return Snapshot{reserveA: reserveA, reserveB: reserveB, supply: supply}
}

func (s Snapshot) ReserveA() uint64 { return s.reserveA }
func (s Snapshot) ReserveB() uint64 { return s.reserveB }
func (s Snapshot) Supply() uint64   { return s.supply }

// Reserves orders the reserves as (in, out) for a swap direction.
func (s Snapshot) Reserves(dir Direction) (uint64, uint64) {
	if dir == BToA {
		return s.reserveB, s.reserveA
	}
	return s.reserveA, s.reserveB
}
