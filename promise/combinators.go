package promise

// All resolves with the values of futures in argument order once every
// future fulfilled. The first rejection or cancellation settles the result.
func All(futures ...Future) Future {
	d := NewDeferred(func() {
		for _, f := range futures {
			f.Cancel()
		}
	})
	if len(futures) == 0 {
		d.Resolve([]any{})
		return d
	}

	values := make([]any, len(futures))
	remaining := len(futures)
	for i, f := range futures {
		i := i
		f.Then(func(o Outcome) {
			if d.IsSettled() {
				return
			}
			if !o.Fulfilled() {
				d.Settle(o)
				return
			}
			values[i] = o.Value()
			remaining--
			if remaining == 0 {
				d.Resolve(values)
			}
		})
	}
	return d
}

// Any resolves with the first fulfilled value. When every future fails the
// last failure settles the result.
func Any(futures ...Future) Future {
	d := NewDeferred(func() {
		for _, f := range futures {
			f.Cancel()
		}
	})
	if len(futures) == 0 {
		d.Resolve(nil)
		return d
	}

	remaining := len(futures)
	for _, f := range futures {
		f.Then(func(o Outcome) {
			if d.IsSettled() {
				return
			}
			remaining--
			if o.Fulfilled() || remaining == 0 {
				d.Settle(o)
			}
		})
	}
	return d
}

// Map derives a future whose fulfilled value is fn(value). Failures pass
// through unchanged.
func Map(f Future, fn func(any) (any, error)) Future {
	d := NewDeferred(f.Cancel)
	f.Then(func(o Outcome) {
		if !o.Fulfilled() {
			d.Settle(o)
			return
		}
		v, err := fn(o.Value())
		if err != nil {
			d.Reject(err)
			return
		}
		d.Resolve(v)
	})
	return d
}

// Follow settles d with the outcome of f.
func Follow(d *Deferred, f Future) {
	f.Then(func(o Outcome) {
		d.TrySettle(o)
	})
}
