package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wms-allocation/models"
	"wms-allocation/types"
)

const (
	StrategyFIFO = "fifo"
	StrategyFEFO = "fefo"
	StrategyLIFO = "lifo"
)

var (
	ErrInvalidDemand   = errors.New("demand quantity must be a positive integer")
	ErrUnknownStrategy = errors.New("unknown allocation strategy")
)

// ItemDemand is one order line to plan against the lot snapshot.
type ItemDemand struct {
	OrderItemID types.SnowflakeID
	ItemID      int
	ItemCode    string
	Quantity    int
	WhsScope    []string // empty means any warehouse with eligible stock
}

// LotAllocation is one planned draw from a lot.
type LotAllocation struct {
	LotID     types.SnowflakeID `json:"lot_id"`
	LotNumber string            `json:"lot_number"`
	WhsCode   string            `json:"whs_code"`
	Quantity  int               `json:"quantity"`
}

// Plan is the selector output for one demand line. Shortfall > 0 is a valid
// outcome (partial allocation), not an error; demand is never silently
// dropped.
type Plan struct {
	Allocations []LotAllocation `json:"allocations"`
	Shortfall   int             `json:"shortfall"`
}

// Allocated returns the total planned quantity across lots.
func (p Plan) Allocated() int {
	total := 0
	for _, a := range p.Allocations {
		total += a.Quantity
	}
	return total
}

// Strategy orders candidate lots. Less is the primary sort key; equal lots
// always fall back to ascending lot id so a given snapshot plans the same
// way every time.
type Strategy struct {
	Name string
	Less func(a, b *models.Lot) bool
}

var (
	strategyMu sync.RWMutex
	strategies = map[string]Strategy{}
)

// RegisterStrategy adds a custom strategy under its name. Built-in names
// cannot be overridden.
func RegisterStrategy(s Strategy) error {
	if s.Name == "" || s.Less == nil {
		return fmt.Errorf("strategy must have a name and a comparator")
	}
	switch s.Name {
	case StrategyFIFO, StrategyFEFO, StrategyLIFO:
		return fmt.Errorf("cannot override built-in strategy %q", s.Name)
	}
	strategyMu.Lock()
	defer strategyMu.Unlock()
	strategies[s.Name] = s
	return nil
}

// StrategyByName resolves a built-in or registered custom strategy.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case StrategyFIFO:
		return Strategy{Name: StrategyFIFO, Less: fifoLess}, nil
	case StrategyFEFO:
		return Strategy{Name: StrategyFEFO, Less: fefoLess}, nil
	case StrategyLIFO:
		return Strategy{Name: StrategyLIFO, Less: lifoLess}, nil
	}
	strategyMu.RLock()
	defer strategyMu.RUnlock()
	if s, ok := strategies[name]; ok {
		return s, nil
	}
	return Strategy{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

// StrategyNames lists every resolvable strategy name.
func StrategyNames() []string {
	names := []string{StrategyFEFO, StrategyFIFO, StrategyLIFO}
	strategyMu.RLock()
	for name := range strategies {
		names = append(names, name)
	}
	strategyMu.RUnlock()
	sort.Strings(names)
	return names
}

func fifoLess(a, b *models.Lot) bool {
	return a.InboundDate.Before(b.InboundDate)
}

func lifoLess(a, b *models.Lot) bool {
	return a.InboundDate.After(b.InboundDate)
}

// fefoLess sorts by ascending expiry; lots without an expiry date sort last.
func fefoLess(a, b *models.Lot) bool {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
		return false
	case a.ExpiryDate == nil:
		return false
	case b.ExpiryDate == nil:
		return true
	default:
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}
}

func init() {
	// Reference custom strategy: cheapest stock first.
	RegisterStrategy(Strategy{
		Name: "lowest_cost",
		Less: func(a, b *models.Lot) bool {
			return a.UnitCost.LessThan(b.UnitCost)
		},
	})
}

// SelectLots plans one demand line against a point-in-time lot snapshot.
// It performs no mutation; the caller commits the plan transactionally and
// re-validates availability under row locks.
func SelectLots(demand ItemDemand, strategy Strategy, lots []models.Lot, asOf time.Time) (Plan, error) {
	if demand.Quantity <= 0 {
		return Plan{}, fmt.Errorf("%w: item %s qty %d", ErrInvalidDemand, demand.ItemCode, demand.Quantity)
	}
	if strategy.Less == nil {
		return Plan{}, fmt.Errorf("%w: strategy %q has no comparator", ErrUnknownStrategy, strategy.Name)
	}

	scope := map[string]bool{}
	for _, whs := range demand.WhsScope {
		scope[whs] = true
	}

	candidates := make([]models.Lot, 0, len(lots))
	for _, lot := range lots {
		if demand.ItemID != 0 && lot.ItemID != demand.ItemID {
			continue
		}
		if len(scope) > 0 && !scope[lot.WhsCode] {
			continue
		}
		if !lot.Allocatable(asOf) {
			continue
		}
		candidates = append(candidates, lot)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if strategy.Less(a, b) {
			return true
		}
		if strategy.Less(b, a) {
			return false
		}
		return a.ID < b.ID
	})

	plan := Plan{Allocations: []LotAllocation{}}
	remaining := demand.Quantity
	for i := range candidates {
		if remaining < 1 {
			break
		}
		lot := &candidates[i]
		qty := lot.Available()
		if qty > remaining {
			qty = remaining
		}
		plan.Allocations = append(plan.Allocations, LotAllocation{
			LotID:     lot.ID,
			LotNumber: lot.LotNumber,
			WhsCode:   lot.WhsCode,
			Quantity:  qty,
		})
		remaining -= qty
	}
	plan.Shortfall = remaining

	return plan, nil
}
