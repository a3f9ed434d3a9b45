package optimization

import (
	"github.com/rs/zerolog"
)

// Registration reports what happened to one entity passed to an Update call.
type Registration struct {
	Name string
	// Replaced is set when an entity with the same name was already registered.
	Replaced bool
	// Collision is set when the replaced entity described something else.
	Collision bool
}

type named interface {
	key() string
	about() string
}

func (v *Variable) key() string   { return v.Name }
func (v *Variable) about() string { return v.Description }

func (m *Metric) key() string   { return m.Name }
func (m *Metric) about() string { return m.Description }

func (o *Objective) key() string   { return o.Name }
func (o *Objective) about() string { return o.Description }

func (c *Constraint) key() string   { return c.Name }
func (c *Constraint) about() string { return c.Description }

// registry is an insertion-ordered map. Overwriting an entry keeps its
// original position.
type registry[T named] struct {
	order []string
	items map[string]T
}

func (r *registry[T]) put(item T) Registration {
	if r.items == nil {
		r.items = make(map[string]T)
	}
	name := item.key()
	reg := Registration{Name: name}
	if prev, ok := r.items[name]; ok {
		reg.Replaced = true
		reg.Collision = prev.about() != item.about()
	} else {
		r.order = append(r.order, name)
	}
	r.items[name] = item
	return reg
}

func (r *registry[T]) get(name string) (T, bool) {
	item, ok := r.items[name]
	return item, ok
}

func (r *registry[T]) list() []T {
	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.items[name])
	}
	return out
}

func (r *registry[T]) len() int { return len(r.order) }

func (r *registry[T]) clear() {
	r.order = nil
	r.items = nil
}

// Model is the registry of one simulation run. It is not safe for concurrent
// use; every run builds its own.
type Model struct {
	variables   registry[*Variable]
	metrics     registry[*Metric]
	objectives  registry[*Objective]
	constraints registry[*Constraint]

	weights *Variable
	tickers []string
	ema     *emaState
	outcome *Outcome

	log zerolog.Logger
}

// NewModel creates an empty model.
func NewModel(log zerolog.Logger) *Model {
	return &Model{
		log: log.With().Str("component", "optimization_model").Logger(),
	}
}

// UpdateVariables registers variables, replacing any with the same name.
func (m *Model) UpdateVariables(vars ...*Variable) []Registration {
	return update(m, KindVariable, &m.variables, vars)
}

// UpdateMetrics registers metrics, replacing any with the same name.
func (m *Model) UpdateMetrics(metrics ...*Metric) []Registration {
	return update(m, KindMetric, &m.metrics, metrics)
}

// UpdateObjectives registers objectives, replacing any with the same name.
func (m *Model) UpdateObjectives(objectives ...*Objective) []Registration {
	return update(m, KindObjective, &m.objectives, objectives)
}

// UpdateConstraints registers constraints, replacing any with the same name.
func (m *Model) UpdateConstraints(constraints ...*Constraint) []Registration {
	return update(m, KindConstraint, &m.constraints, constraints)
}

func update[T named](m *Model, kind string, r *registry[T], items []T) []Registration {
	regs := make([]Registration, 0, len(items))
	for _, item := range items {
		reg := r.put(item)
		if reg.Collision {
			m.log.Warn().
				Str("kind", kind).
				Str("name", reg.Name).
				Msg("Registration replaced an unrelated entity with the same name")
		}
		regs = append(regs, reg)
	}
	return regs
}

// Clear empties all four registries and forgets the weights and ema handles.
func (m *Model) Clear() {
	m.variables.clear()
	m.metrics.clear()
	m.objectives.clear()
	m.constraints.clear()
	m.weights = nil
	m.tickers = nil
	m.ema = nil
	m.outcome = nil
}

// Variables returns registered variables in registration order.
func (m *Model) Variables() []*Variable { return m.variables.list() }

// Metrics returns registered metrics in registration order.
func (m *Model) Metrics() []*Metric { return m.metrics.list() }

// Objectives returns registered objectives in registration order.
func (m *Model) Objectives() []*Objective { return m.objectives.list() }

// Constraints returns registered constraints in registration order.
func (m *Model) Constraints() []*Constraint { return m.constraints.list() }

// Variable looks up a variable by name.
func (m *Model) Variable(name string) (*Variable, bool) { return m.variables.get(name) }

// Metric looks up a metric by name.
func (m *Model) Metric(name string) (*Metric, bool) { return m.metrics.get(name) }

// Objective looks up an objective by name.
func (m *Model) Objective(name string) (*Objective, bool) { return m.objectives.get(name) }

// Constraint looks up a constraint by name.
func (m *Model) Constraint(name string) (*Constraint, bool) { return m.constraints.get(name) }

// Weights returns the portfolio weights variable, or nil before SetWeights.
func (m *Model) Weights() *Variable { return m.weights }

// Tickers returns the assets the weights variable was created for.
func (m *Model) Tickers() []string { return append([]string(nil), m.tickers...) }

// EMAVariable returns the exponential moving average variable, or nil.
func (m *Model) EMAVariable() *Variable {
	if m.ema == nil {
		return nil
	}
	return m.ema.variable
}

// Outcome returns the result of the last Optimize call, or nil.
func (m *Model) Outcome() *Outcome { return m.outcome }

// Counts returns the number of registered variables, metrics, objectives and
// constraints.
func (m *Model) Counts() (variables, metrics, objectives, constraints int) {
	return m.variables.len(), m.metrics.len(), m.objectives.len(), m.constraints.len()
}
