// Package stage assembles the stages of the delivery pipeline: fetching the
// source tree, building it into an image, and rolling that image onto a
// deploy target.
package stage

import (
	"errors"

	"github.com/ecsapp/ecsapp-infra/internal/artifact"
)

var ErrInvalidStage = errors.New("invalid stage")

// Action names as they show up in the pipeline console.
const (
	SourceActionName = "Github_Source"
	BuildActionName  = "CodeBuild_Action"
	DeployActionName = "ECSDeploy_Action"
)

func checkArtifact(a *artifact.Artifact, kind artifact.Kind) bool {
	return a != nil && a.Kind() == kind
}
