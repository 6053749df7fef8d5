// Package preprocess invokes the external preprocessor binary the
// driver depends on, per spec.md §6: "the driver invokes an external
// binary ./capp <inFile> /tmp/auto.capp and reads the latter as the
// parser input." The preprocessor itself (macro expansion, #include,
// whatever ./capp does) is an out-of-scope collaborator; this package
// only owns the subprocess boundary and its failure contract.
package preprocess

import (
	"os/exec"

	"classicalc/internal/errors"
)

// OutputPath is the fixed location the driver reads preprocessed source
// from, per spec.md §6's "Environment / persisted state: none beyond
// /tmp/auto.capp."
const OutputPath = "/tmp/auto.capp"

// Run invokes ./capp inFile OutputPath and returns OutputPath on
// success. A non-zero exit aborts compilation with an Invocation error,
// matching "Preprocessor non-zero exit aborts compilation."
func Run(capp, inFile string) (string, error) {
	cmd := exec.Command(capp, inFile, OutputPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.NewInvocation("preprocessor %q failed on %q: %v\n%s", capp, inFile, err, out)
	}
	return OutputPath, nil
}
