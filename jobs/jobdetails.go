package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Param is one captured argument value, paired with its declared type name
// so a dispatch-table resolver can deserialize it without reflection over
// the wire representation.
type Param struct {
	ClassName string `json:"className"`
	Value     any    `json:"value"`
}

// JobDetails is the persistent descriptor naming the user code a Job
// invokes: a fully-qualified class name, a method name, and its captured
// parameters. Resolving it to an actual callable is left to a pluggable
// dispatch table (see server.Dispatcher); this package only carries the
// descriptor and its stable signature.
type JobDetails struct {
	ClassName      string  `json:"className"`
	MethodName     string  `json:"methodName"`
	StaticFieldName string `json:"staticFieldName,omitempty"`
	Params         []Param `json:"params"`
}

// Signature returns a stable hash of (ClassName, MethodName, StaticFieldName,
// ordered param class names) used to detect duplicate concurrent instances of the same
// recurring job and to dedup jobSignatures across the store.
func (d JobDetails) Signature() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", d.ClassName, d.MethodName, d.StaticFieldName)
	for _, p := range d.Params {
		fmt.Fprintf(h, "%s,", p.ClassName)
	}
	return hex.EncodeToString(h.Sum(nil))
}
