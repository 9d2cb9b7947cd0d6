// Package cfn models the AWS CloudFormation template that the infrastructure
// components synthesize into.
//
// Components never talk to AWS. Each one renders its resources into a
// Template through the Component interface, and names them through an
// explicit Scope handed down by its parent.
package cfn
