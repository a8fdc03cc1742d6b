// Package deopt implements the deoptimizer: the bookkeeping that decides
// what happens after an optjit-compiled region's guard fails. There are
// two textbook flavors; eager (a guard check inside running optimized
// code fails) and lazy (an assumption the optimized code depended on,
// such as a shape staying stable, is invalidated by something running
// elsewhere, so the code is marked invalid and the next entry bounces
// off it instead of the guard ever executing at all).
//
// This core only ever produces eager deopts in practice: optjit.CodeObject
// Run already type-guards inline every time it runs, so the "lazy"
// path here is triggered by the interpreter explicitly, when a shape
// transition bumps an epoch a compiled region's Assumptions recorded.
// Either way funnels through the same per-site exit counter and the
// same two-threshold cascade.
//
// Failures accumulate per guard site through a two-stage cascade: the
// site keeps failing -> stop ever re-speculating that one assumption ->
// keeps failing even without that speculation -> stop ever reoptimizing
// the function at all.
package deopt

import (
	"sync"

	"corevm/internal/optjit"
)

// Thresholds are documented tunables: a site is allowed a few failures before its speculation
// is permanently disabled, and a function is allowed a few such
// disablements before tier-2 is banned for it outright. Real engines tune
// these empirically; these values just need to be "a few, then a few
// more" to demonstrate the cascade.
const (
	// SpeculationForbiddenThreshold is how many times one guard site may
	// fail before the assumption it guards is never re-attempted.
	SpeculationForbiddenThreshold = 3
	// ReoptBanThreshold is how many of a function's sites must each reach
	// SpeculationForbiddenThreshold before tier 2 is banned for that
	// function for the rest of the run.
	ReoptBanThreshold = 8
)

// siteKey identifies one guard site: the function's chunk identity (its
// FunctionObject, type-erased to avoid an object import cycle; deopt is
// a leaf package other packages call into, not one that reaches back up)
// plus the PC the guard sits at.
type siteKey struct {
	fn interface{}
	pc int
}

// site tracks one guard's failure history.
type site struct {
	exits     uint32
	forbidden bool
}

// Table is the deoptimizer's per-engine state: every guard site's exit
// counter and every function's reopt-ban flag. One Table is shared by
// every compiled region in an engine rather than allocated per function.
type Table struct {
	mu       sync.Mutex
	sites    map[siteKey]*site
	banned   map[interface{}]bool
	forbidAt map[interface{}]int // forbidden-speculation count per function
}

// NewTable creates an empty deopt bookkeeping table.
func NewTable() *Table {
	return &Table{
		sites:    make(map[siteKey]*site),
		banned:   make(map[interface{}]bool),
		forbidAt: make(map[interface{}]int),
	}
}

// Record registers one guard failure at (fn, pc) and reports whether the
// function's tier-2 compilation is now banned outright.
func (t *Table) Record(fn interface{}, pc int, reason optjit.DeoptReason) (banned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := siteKey{fn: fn, pc: pc}
	s, ok := t.sites[key]
	if !ok {
		s = &site{}
		t.sites[key] = s
	}
	s.exits++
	if !s.forbidden && s.exits >= SpeculationForbiddenThreshold {
		s.forbidden = true
		t.forbidAt[fn]++
		if t.forbidAt[fn] >= ReoptBanThreshold {
			t.banned[fn] = true
		}
	}
	return t.banned[fn]
}

// SpeculationForbidden reports whether the guard at (fn, pc) has failed
// often enough that a future recompilation should skip speculating on it
// (i.e., compile that region's guard to an unconditional bail instead of
// a runtime check) rather than paying for the same failure again.
func (t *Table) SpeculationForbidden(fn interface{}, pc int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sites[siteKey{fn: fn, pc: pc}]
	return ok && s.forbidden
}

// ReoptBanned reports whether fn has crossed ReoptBanThreshold and should
// never be handed to optjit.Compile again.
func (t *Table) ReoptBanned(fn interface{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.banned[fn]
}
