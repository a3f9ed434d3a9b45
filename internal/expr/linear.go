package expr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Form is one affine function: sum(Coef[c] * c) + Const.
type Form struct {
	Coef  map[Column]float64
	Const float64
}

// EvalWith evaluates the form using val for column values.
func (f Form) EvalWith(val func(Column) float64) float64 {
	s := f.Const
	for c, k := range f.Coef {
		s += k * val(c)
	}
	return s
}

func (f Form) eval() (float64, bool) {
	s := f.Const
	for c, k := range f.Coef {
		if c.Var.value == nil {
			return 0, false
		}
		s += k * c.Var.value[c.Index]
	}
	return s, true
}

func (f Form) scaled(k float64) Form {
	out := Form{Coef: make(map[Column]float64, len(f.Coef)), Const: k * f.Const}
	for c, v := range f.Coef {
		if v*k != 0 {
			out.Coef[c] = v * k
		}
	}
	return out
}

// accumulate adds k*src into f in place. f must own its map.
func (f *Form) accumulate(src Form, k float64) {
	f.Const += k * src.Const
	for c, v := range src.Coef {
		nv := f.Coef[c] + k*v
		if nv == 0 {
			delete(f.Coef, c)
			continue
		}
		f.Coef[c] = nv
	}
}

func newForm() Form {
	return Form{Coef: map[Column]float64{}}
}

// Linear is a vector of affine forms. It is the affine case of Expr.
type Linear struct {
	rows []Form
}

// Var returns the identity expression of v.
func Var(v *Variable) *Linear {
	rows := make([]Form, v.size)
	for i := range rows {
		rows[i] = Form{Coef: map[Column]float64{{Var: v, Index: i}: 1}}
	}
	return &Linear{rows: rows}
}

// Const returns a constant vector expression.
func Const(values ...float64) *Linear {
	if len(values) == 0 {
		panic(fmt.Errorf("%w: empty constant", ErrShape))
	}
	rows := make([]Form, len(values))
	for i, v := range values {
		rows[i] = Form{Coef: map[Column]float64{}, Const: v}
	}
	return &Linear{rows: rows}
}

// Len returns the number of elements.
func (l *Linear) Len() int { return len(l.rows) }

// Curvature is always Affine.
func (l *Linear) Curvature() Curvature { return Affine }

// Row returns element i.
func (l *Linear) Row(i int) Form { return l.rows[i] }

// IsConstant reports whether no element references a variable.
func (l *Linear) IsConstant() bool {
	for _, r := range l.rows {
		if len(r.Coef) > 0 {
			return false
		}
	}
	return true
}

// Value evaluates every element; ok is false while a referenced variable is unresolved.
func (l *Linear) Value() ([]float64, bool) {
	out := make([]float64, len(l.rows))
	for i, r := range l.rows {
		v, ok := r.eval()
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (l *Linear) lower(*lowering) (*Linear, error) { return l, nil }

func (l *Linear) at(i int) Form {
	if len(l.rows) == 1 {
		return l.rows[0]
	}
	return l.rows[i]
}

func (l *Linear) scale(k float64) *Linear {
	rows := make([]Form, len(l.rows))
	for i, r := range l.rows {
		rows[i] = r.scaled(k)
	}
	return &Linear{rows: rows}
}

// combineLinear returns sum(coefs[i] * terms[i]) broadcast to n elements.
func combineLinear(n int, coefs []float64, terms []*Linear) *Linear {
	rows := make([]Form, n)
	for i := range rows {
		f := newForm()
		for j, t := range terms {
			f.accumulate(t.at(i), coefs[j])
		}
		rows[i] = f
	}
	return &Linear{rows: rows}
}

func (l *Linear) pick(sel [][]pick) *Linear {
	rows := make([]Form, len(sel))
	for i, ps := range sel {
		f := newForm()
		for _, p := range ps {
			f.accumulate(l.rows[p.j], p.w)
		}
		rows[i] = f
	}
	return &Linear{rows: rows}
}

func matVecLinear(m mat.Matrix, x *Linear) *Linear {
	r, c := m.Dims()
	rows := make([]Form, r)
	for i := 0; i < r; i++ {
		f := newForm()
		for j := 0; j < c; j++ {
			if a := m.At(i, j); a != 0 {
				f.accumulate(x.rows[j], a)
			}
		}
		rows[i] = f
	}
	return &Linear{rows: rows}
}
