// Property-based tests for the room ledger rules. They drive an
// in-memory simulation mirroring the validation and bookkeeping in
// RoomService, with no database dependency.
package service

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// roomSim is an in-memory room ledger: per-participant room balances
// plus global totals, mutated by the same rules TransferPoints applies.
type roomSim struct {
	balances map[string]int64
	totals   map[string]int64
	active   map[string]bool
	closed   bool
}

func newRoomSim(players []string) *roomSim {
	s := &roomSim{
		balances: make(map[string]int64),
		totals:   make(map[string]int64),
		active:   make(map[string]bool),
	}
	for _, p := range players {
		s.balances[p] = 0
		s.totals[p] = 0
		s.active[p] = true
	}
	return s
}

func (s *roomSim) transfer(from, to string, points int64) error {
	if points <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	if s.closed {
		return ErrRoomClosed
	}
	if !s.active[from] || !s.active[to] {
		return ErrNotActiveParticipant
	}
	s.balances[from] -= points
	s.balances[to] += points
	s.totals[from] -= points
	s.totals[to] += points
	return nil
}

// settle mirrors EndRoom: win/loss by the sign of the room balance.
func (s *roomSim) settle() map[string]int {
	s.closed = true
	signs := make(map[string]int, len(s.balances))
	for p, b := range s.balances {
		switch {
		case b > 0:
			signs[p] = 1
		case b < 0:
			signs[p] = -1
		default:
			signs[p] = 0
		}
	}
	return signs
}

func TestTransferConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		players := []string{"a", "b", "c", "d"}
		sim := newRoomSim(players)

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			from := rapid.SampledFrom(players).Draw(t, "from")
			to := rapid.SampledFrom(players).Draw(t, "to")
			points := rapid.Int64Range(-10, 500).Draw(t, "points")

			err := sim.transfer(from, to, points)
			if points <= 0 {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("non-positive amount %d accepted", points)
				}
				continue
			}
			if from == to {
				if !errors.Is(err, ErrSelfTransfer) {
					t.Fatal("self transfer accepted")
				}
				continue
			}
			if err != nil {
				t.Fatalf("valid transfer rejected: %v", err)
			}
		}

		var balanceSum, totalSum int64
		for _, p := range players {
			balanceSum += sim.balances[p]
			totalSum += sim.totals[p]
		}
		if balanceSum != 0 {
			t.Fatalf("room balances sum to %d, want 0", balanceSum)
		}
		if totalSum != 0 {
			t.Fatalf("global totals sum to %d, want 0", totalSum)
		}
	})
}

func TestTransferMirrorsGlobalTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		players := []string{"a", "b", "c"}
		sim := newRoomSim(players)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			from := rapid.SampledFrom(players).Draw(t, "from")
			to := rapid.SampledFrom(players).Draw(t, "to")
			points := rapid.Int64Range(1, 100).Draw(t, "points")
			_ = sim.transfer(from, to, points)
		}

		// Every transfer moved room balance and global total in
		// lockstep, so the two ledgers agree per player.
		for _, p := range players {
			if sim.balances[p] != sim.totals[p] {
				t.Fatalf("player %s: room balance %d diverged from global total %d",
					p, sim.balances[p], sim.totals[p])
			}
		}
	})
}

func TestSettlementSignsMatchBalances(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		players := []string{"a", "b", "c", "d", "e"}
		sim := newRoomSim(players)

		steps := rapid.IntRange(0, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			from := rapid.SampledFrom(players).Draw(t, "from")
			to := rapid.SampledFrom(players).Draw(t, "to")
			points := rapid.Int64Range(1, 200).Draw(t, "points")
			_ = sim.transfer(from, to, points)
		}

		signs := sim.settle()

		winners, losers := 0, 0
		for p, sign := range signs {
			switch sign {
			case 1:
				winners++
				if sim.balances[p] <= 0 {
					t.Fatalf("player %s marked winner with balance %d", p, sim.balances[p])
				}
			case -1:
				losers++
				if sim.balances[p] >= 0 {
					t.Fatalf("player %s marked loser with balance %d", p, sim.balances[p])
				}
			}
		}
		// Zero-sum: a room cannot have winners without losers
		if (winners == 0) != (losers == 0) {
			t.Fatalf("unbalanced settlement: %d winners, %d losers", winners, losers)
		}

		// A closed room accepts no more transfers
		if err := sim.transfer("a", "b", 10); !errors.Is(err, ErrRoomClosed) {
			t.Fatal("transfer accepted after settlement")
		}
	})
}
