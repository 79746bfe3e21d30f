// Package trainer runs the flow training loop: it splits every batch across
// worker goroutines with private gradient buffers, reduces and clips the
// gradients, steps Adam, follows the weights with an EMA copy, and
// periodically logs, samples with the EMA model and checkpoints.
package trainer
