// Package flow implements rectified flow objectives and their samplers.
//
// A flow model is a network v(x, t) trained by regression to transport a
// noise distribution onto a data distribution along straight paths:
//
//   - [Rectified] interpolates x_t = t·data + (1-t)·noise and regresses the
//     constant velocity data - noise. Sampling integrates dx/dt = v(x, t)
//     from t=0 (noise) to t=1 (data) with an ODE solver.
//   - [Mean] learns the average velocity u(z, t, r) over [r, t] using the
//     MeanFlow identity u = v - (t-r)·du/dt, where du/dt is a forward mode
//     Jacobian vector product. It samples in one or a few steps.
//   - [Reflow] retrains a rectified flow on noise/data couplings produced by
//     an already trained flow, straightening its paths.
//
// Objectives never own the network. They receive a [Model] and accumulate
// gradients into a caller provided buffer, so callers can split a batch over
// goroutines with one gradient buffer each.
package flow
