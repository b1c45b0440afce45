// Package chrono provides the time primitives the rest of the module
// builds on: an injectable Clock and a CronExpression parser/evaluator used
// to materialize recurring-job occurrences.
package chrono
