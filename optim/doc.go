// Package optim implements first order optimizers for flat weight vectors.
//
// [Adam] follows the bias corrected update of Kingma and Ba with optional L2
// or decoupled (AdamW) weight decay. Post step hooks let an EMA follow the
// online weights right after each update. Learning rate schedules implement
// [Schedule] and are applied by the caller through [Adam.SetLR].
package optim
