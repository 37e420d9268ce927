package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

var ErrNoSamples = errors.New("anomaly: no samples to train on")

// Model maps a service's failure counters to an anomaly score.
// Implementations must be immutable once published.
type Model interface {
	Score(failed, restarts int) float64
}

// Trainer fits a new Model from a batch of feedback.
type Trainer interface {
	Fit(ctx context.Context, samples []domain.FeedbackRecord) (Model, error)
	Encode(m Model) ([]byte, error)
	Decode(data []byte) (Model, error)
}

// LinearModel is score = Bias + WFailed*failed + WRestarts*restarts, clamped to [0,1].
type LinearModel struct {
	Bias      float64 `json:"bias"`
	WFailed   float64 `json:"w_failed"`
	WRestarts float64 `json:"w_restarts"`
	Samples   int     `json:"samples"`
}

func (m *LinearModel) Score(failed, restarts int) float64 {
	return clamp01(m.Bias + m.WFailed*float64(failed) + m.WRestarts*float64(restarts))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// LeastSquares fits a LinearModel by ridge-regularised ordinary least squares
// on (failedHealthChecks, restartAttempts) -> anomalyScore.
type LeastSquares struct {
	// Lambda is the ridge term keeping the normal equations solvable
	// when a feature never varies.
	Lambda float64
}

func (t LeastSquares) Fit(ctx context.Context, samples []domain.FeedbackRecord) (Model, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	lambda := t.Lambda
	if lambda <= 0 {
		lambda = 1e-6
	}

	// Normal equations (XᵀX + λI) w = Xᵀy with x = [1, failed, restarts].
	var a [3][4]float64
	for i, s := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		x := [3]float64{1, float64(s.FailedHealthChecks), float64(s.RestartAttempts)}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				a[r][c] += x[r] * x[c]
			}
			a[r][3] += x[r] * s.AnomalyScore
		}
	}
	for d := 0; d < 3; d++ {
		a[d][d] += lambda
	}

	w, err := solve3(a)
	if err != nil {
		return nil, err
	}
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("anomaly: non-finite coefficients %v", w)
		}
	}

	return &LinearModel{Bias: w[0], WFailed: w[1], WRestarts: w[2], Samples: len(samples)}, nil
}

func (t LeastSquares) Encode(m Model) ([]byte, error) {
	lm, ok := m.(*LinearModel)
	if !ok {
		return nil, fmt.Errorf("anomaly: cannot encode %T", m)
	}
	return json.Marshal(lm)
}

func (t LeastSquares) Decode(data []byte) (Model, error) {
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("anomaly: decode model: %w", err)
	}
	return &m, nil
}

// solve3 runs Gaussian elimination with partial pivoting on an augmented 3x4 matrix.
func solve3(a [3][4]float64) ([3]float64, error) {
	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [3]float64{}, errors.New("anomaly: singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := col + 1; r < 3; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < 4; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	var w [3]float64
	for r := 2; r >= 0; r-- {
		sum := a[r][3]
		for c := r + 1; c < 3; c++ {
			sum -= a[r][c] * w[c]
		}
		w[r] = sum / a[r][r]
	}
	return w, nil
}
