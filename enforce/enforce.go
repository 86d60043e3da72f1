// Package enforce provides fail-fast invariant checking for conditions that
// indicate corrupted internal state rather than a caller mistake -- the
// kind of thing that should never happen if the rest of the module is
// correct. Recoverable, caller-facing failures (bad stream, locked graph,
// exhausted sketch) are returned as errors elsewhere and never go through
// this package.
package enforce

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

func init() {
	checkCompiler()
}

// ENFORCE panics with a logged message if query is a false bool or a
// non-nil error. A nil error is accepted silently, so call sites can write
// enforce.ENFORCE(err, "context") uniformly.
func ENFORCE(query interface{}, args ...interface{}) {
	switch t := query.(type) {
	case bool:
		if !t {
			log.Error().Interface("args", args).Msg("ENFORCE failed")
			panic(fmt.Sprintf("enforce: failed invariant: %v", args))
		}
	case error:
		if t != nil {
			log.Error().Err(t).Interface("args", args).Msg("ENFORCE failed")
			panic(t)
		}
	case string:
		log.Error().Interface("args", args).Msg(t)
		panic(t)
	case nil:
		// Allow nil so enforce.ENFORCE(err) reads naturally when err may be nil.
	default:
		log.Error().Interface("query", t).Interface("args", args).Msg("ENFORCE: incorrect usage")
		panic(t)
	}
}

// checkCompiler enforces a 64-bit machine: the triangular pairing function
// and bucket-index hashing both assume uint64 arithmetic does not silently
// truncate.
func checkCompiler() {
	myInt := int(math.MaxInt64)
	myInt64 := int64(math.MaxInt64)
	ENFORCE(uint64(myInt) == uint64(myInt64), "must be on a 64 bit system")
}
