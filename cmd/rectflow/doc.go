// Command rectflow trains rectified flow and mean flow models on synthetic
// datasets, samples trained checkpoints and inspects checkpoint headers.
//
//	rectflow train --config run.yaml --dataset moons --objective mean
//	rectflow sample --checkpoint results/model.ckpt --out moons.png --n 512
//	rectflow inspect --checkpoint results/model.ckpt
package main
