// Package model provides the data structures shared by every AutoML component.
// It defines the learning task, the dense dataset container, prediction outputs
// and the contracts implemented by trainable models, tuners and feature pipelines.
package model
