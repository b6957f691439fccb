package linear

import "math"

type Options struct {
	Epochs       int
	LearningRate float64
}

// Weights holds a multinomial logistic model: one bias and one coefficient
// row per class.
type Weights struct {
	Biases       []float64   `json:"biases"`
	Coefficients [][]float64 `json:"coefficients"`
}

type Metrics struct {
	Loss     float64
	Accuracy float64
}

func TrainSoftmax(samples [][]float64, labels []int, classes int, opts Options) (Weights, Metrics) {
	if opts.Epochs <= 0 {
		opts.Epochs = 200
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.01
	}

	n := len(samples)
	if n == 0 || classes < 2 {
		return Weights{}, Metrics{}
	}
	featureCount := len(samples[0])

	weights := Weights{
		Biases:       make([]float64, classes),
		Coefficients: make([][]float64, classes),
	}
	for c := range weights.Coefficients {
		weights.Coefficients[c] = make([]float64, featureCount)
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		grad := make([][]float64, classes)
		for c := range grad {
			grad[c] = make([]float64, featureCount)
		}
		biasGrad := make([]float64, classes)

		for i, sample := range samples {
			proba := PredictProba(weights, sample)
			for c := 0; c < classes; c++ {
				target := 0.0
				if labels[i] == c {
					target = 1.0
				}
				diff := proba[c] - target
				for j := 0; j < featureCount; j++ {
					grad[c][j] += diff * sample[j]
				}
				biasGrad[c] += diff
			}
		}
		for c := 0; c < classes; c++ {
			for j := 0; j < featureCount; j++ {
				weights.Coefficients[c][j] -= opts.LearningRate * grad[c][j] / float64(n)
			}
			weights.Biases[c] -= opts.LearningRate * biasGrad[c] / float64(n)
		}
	}

	loss, accuracy := evaluate(weights, samples, labels)
	return weights, Metrics{Loss: loss, Accuracy: accuracy}
}

// PredictProba returns calibrated class probabilities summing to one.
func PredictProba(weights Weights, sample []float64) []float64 {
	scores := make([]float64, len(weights.Biases))
	for c := range weights.Biases {
		scores[c] = weights.Biases[c] + dot(weights.Coefficients[c], sample)
	}
	return softmax(scores)
}

func dot(coefficients []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(coefficients) && i < len(sample); i++ {
		sum += coefficients[i] * sample[i]
	}
	return sum
}

func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var total float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func evaluate(weights Weights, samples [][]float64, labels []int) (float64, float64) {
	var loss float64
	var correct int
	for i, sample := range samples {
		proba := PredictProba(weights, sample)
		loss += -math.Log(proba[labels[i]] + 1e-9)
		if argmax(proba) == labels[i] {
			correct++
		}
	}
	loss /= float64(len(samples))
	accuracy := float64(correct) / float64(len(samples))
	return loss, accuracy
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
