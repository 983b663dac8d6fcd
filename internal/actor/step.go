package actor

// Step reduces a single input without running its effects.
func Step[S any](state S, in Input, reduce ReducerFunc[S]) (S, []Effect) {
	return reduce(state, in)
}

// Steps reduces inputs in order and returns the final state with every
// effect produced along the way.
func Steps[S any](state S, reduce ReducerFunc[S], inputs ...Input) (S, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		state, effects = reduce(state, in)
		all = append(all, effects...)
	}
	return state, all
}
