package fasl

import "github.com/daedaluz/scanlisp/port"

// portState is the per-port FASL-reader attachment spec.md describes as
// part of the port: the definition table, the loader stack/accumulator,
// and (this expansion's addition) a trail of entered/left load unit names
// for diagnostics. It hangs off port.Port.Extra so that table/stack state
// persists across repeated ReadValue/Load calls on the same port, exactly
// as fasl.cpp keeps this state in port_info_t rather than per-call.
type portState struct {
	table         DefinitionTable
	stack         LoaderStack
	loadUnitTrail []string
}

// stateFor returns p's FASL attachment, creating it on first use. Panics
// if p.Extra is already occupied by something else — that would mean two
// unrelated subsystems are fighting over the same attachment slot, a
// programming error, not a runtime condition to recover from.
func stateFor(p *port.Port) *portState {
	if p.Extra == nil {
		p.Extra = &portState{}
	}
	st, ok := p.Extra.(*portState)
	if !ok {
		panic("fasl: port.Extra is already in use by something other than package fasl")
	}
	return st
}
