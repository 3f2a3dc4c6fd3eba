package simd

// LagrangeInterpolator evaluates the barycentric Lagrange form (and its
// first/second derivatives) over an arbitrary, not necessarily
// equi-spaced, node set.
type LagrangeInterpolator struct {
	nodes   []float64
	values  []float64
	weights []float64
}

// NewLagrangeInterpolator precomputes barycentric weights for the given
// node set.
func NewLagrangeInterpolator(nodes, values []float64) *LagrangeInterpolator {
	n := len(nodes)
	w := make([]float64, n)
	for j := 0; j < n; j++ {
		wj := 1.0
		for k := 0; k < n; k++ {
			if k == j {
				continue
			}
			wj /= nodes[j] - nodes[k]
		}
		w[j] = wj
	}
	return &LagrangeInterpolator{nodes: nodes, values: values, weights: w}
}

// closestIndex reports the index of a node exactly equal to x, if any;
// Evaluate returns that node's value instead of dividing by zero there.
// A node that is merely close to x, but not equal, is not reported.
func (l *LagrangeInterpolator) closestIndex(x float64) (int, bool) {
	for i, n := range l.nodes {
		if n == x {
			return i, true
		}
	}
	return -1, false
}

// Evaluate returns the interpolated value at x.
func (l *LagrangeInterpolator) Evaluate(x float64) float64 {
	if i, exact := l.closestIndex(x); exact {
		return l.values[i]
	}
	var num, den float64
	for j := range l.nodes {
		t := l.weights[j] / (x - l.nodes[j])
		num += t * l.values[j]
		den += t
	}
	return num / den
}

// EvaluateDerivative returns the first derivative at x using the
// standard barycentric derivative formula.
func (l *LagrangeInterpolator) EvaluateDerivative(x float64) float64 {
	if _, exact := l.closestIndex(x); exact {
		// Fall back to a tiny symmetric finite difference at nodes,
		// avoiding the 0/0 pole the barycentric derivative formula hits
		// exactly on a node.
		const h = 1e-6
		return (l.Evaluate(x+h) - l.Evaluate(x-h)) / (2 * h)
	}
	p := l.Evaluate(x)
	var num float64
	for j := range l.nodes {
		num += (l.weights[j] / (x - l.nodes[j])) * (l.values[j] - p) / (x - l.nodes[j])
	}
	var den float64
	for j := range l.nodes {
		den += l.weights[j] / (x - l.nodes[j])
	}
	return num / den
}

// EvaluateSecondDerivative approximates the second derivative via a
// central difference of EvaluateDerivative, avoiding a second closed-form
// barycentric expansion for a quantity only used diagnostically.
func (l *LagrangeInterpolator) EvaluateSecondDerivative(x float64) float64 {
	const h = 1e-5
	return (l.EvaluateDerivative(x+h) - l.EvaluateDerivative(x-h)) / (2 * h)
}
