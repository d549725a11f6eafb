package forest

import "errors"

// Errors returned by fitting, prediction and decoding. Callers compare with errors.Is.
var (
	// ErrEmptyTrainingSet is returned when fitting with zero samples.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrLabelLengthMismatch is returned when features and labels differ in length.
	ErrLabelLengthMismatch = errors.New("features and labels length mismatch")

	// ErrFeatureDimensionMismatch is returned when a vector's length differs
	// from the length the model was fit on, or training vectors are ragged.
	ErrFeatureDimensionMismatch = errors.New("feature dimension mismatch")

	// ErrSchemaMismatch is returned when predicting with vectors produced by a
	// different extraction scheme than the model was trained on.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrCorruptModel is returned when a serialized model fails validation.
	ErrCorruptModel = errors.New("corrupt model")
)
