package stage

import (
	"fmt"

	"github.com/ecsapp/ecsapp-infra/internal/artifact"
	"github.com/ecsapp/ecsapp-infra/internal/pipeline"
	"github.com/ecsapp/ecsapp-infra/internal/target"
)

// CreateDeployStage returns the stage rolling the service behind handle
// onto the image described by the image artifact. Rollback on a failed
// deployment is left to ECS.
func CreateDeployStage(name string, image *artifact.Artifact, handle *target.ServiceHandle) (*pipeline.Stage, error) {
	if !checkArtifact(image, artifact.KindImage) {
		return nil, fmt.Errorf("%w: %s needs an image artifact to deploy", ErrInvalidStage, name)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s has no service to deploy to", ErrInvalidStage, name)
	}

	action := pipeline.NewECSDeployAction(DeployActionName, &pipeline.ECSDeployOptions{
		ClusterName: handle.ClusterName,
		ServiceName: handle.ServiceName,
		FileName:    pipeline.DefaultImageDefinitionsFile,
	}, image)
	return pipeline.NewStage(name, action), nil
}
