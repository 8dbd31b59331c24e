package cli

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed artifact.cue
var artifactCUE string

// validateArtifact unifies an artifact JSON document against the
// embedded wire schema. Returns nil when the artifact conforms.
func validateArtifact(data []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(artifactCUE)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("artifact schema: %w", err)
	}
	constraint := schemaVal.LookupPath(cue.ParsePath("artifact"))
	if err := constraint.Err(); err != nil {
		return fmt.Errorf("artifact schema: %w", err)
	}

	expr, err := cuejson.Extract("artifact.json", data)
	if err != nil {
		return fmt.Errorf("artifact is not valid JSON: %w", err)
	}
	docVal := ctx.BuildExpr(expr)
	if err := docVal.Err(); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}

	unified := constraint.Unify(docVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("artifact does not match the wire schema: %w", err)
	}
	return nil
}
