package awscloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ecsapp/ecsapp-infra/internal/prometheus"
)

var (
	ErrStackNotFound    = errors.New("stack does not exist")
	ErrStackBusy        = errors.New("stack operation in progress")
	ErrTemplateTooLarge = errors.New("template too large to pass inline")
)

const (
	// Largest template CloudFormation accepts in a request body. Larger
	// ones have to be uploaded to S3 first.
	MaxTemplateBodySize = 51200

	DefaultStackTimeout = 30 * time.Minute

	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// StackInfo is the deployed state of a stack.
type StackInfo struct {
	ID           string
	Name         string
	Status       string
	StatusReason string
	Outputs      map[string]string
	LastUpdated  time.Time
}

func stackInfo(s *cfntypes.Stack) *StackInfo {
	info := &StackInfo{
		ID:           aws.ToString(s.StackId),
		Name:         aws.ToString(s.StackName),
		Status:       string(s.StackStatus),
		StatusReason: aws.ToString(s.StackStatusReason),
		Outputs:      map[string]string{},
		LastUpdated:  aws.ToTime(s.CreationTime),
	}
	if s.LastUpdatedTime != nil {
		info.LastUpdated = *s.LastUpdatedTime
	}
	for _, o := range s.Outputs {
		info.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return info
}

// InProgress reports whether another operation is still running on the
// stack.
func (s *StackInfo) InProgress() bool {
	return strings.HasSuffix(s.Status, "_IN_PROGRESS")
}

// OutputKeys returns the output names in sorted order.
func (s *StackInfo) OutputKeys() []string {
	keys := make([]string, 0, len(s.Outputs))
	for k := range s.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isValidationError(err error, message string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), message)
}

func isStackNotFound(err error) bool {
	return isValidationError(err, "does not exist")
}

func isNoUpdates(err error) bool {
	return isValidationError(err, "No updates are to be performed")
}

// ClientRequestToken identifies one stack operation so that a resent request
// is not applied twice. Tokens must start with a letter.
func ClientRequestToken() string {
	return "ecsapp-" + uuid.NewString()
}

// Template is a template either inline or uploaded to S3.
type Template struct {
	Body []byte
	URL  string
}

func (t Template) check() error {
	if t.URL == "" && len(t.Body) > MaxTemplateBodySize {
		return fmt.Errorf("%w: %d bytes, limit is %d, upload it to a bucket", ErrTemplateTooLarge, len(t.Body), MaxTemplateBodySize)
	}
	if t.URL == "" && len(t.Body) == 0 {
		return fmt.Errorf("empty template")
	}
	return nil
}

func (t Template) body() *string {
	if t.URL != "" {
		return nil
	}
	return aws.String(string(t.Body))
}

func (t Template) url() *string {
	if t.URL == "" {
		return nil
	}
	return aws.String(t.URL)
}

func (a *AWS) ValidateTemplate(ctx context.Context, template Template) error {
	if err := template.check(); err != nil {
		return err
	}
	out, err := a.cfn.ValidateTemplate(ctx, &cloudformation.ValidateTemplateInput{
		TemplateBody: template.body(),
		TemplateURL:  template.url(),
	})
	if err != nil {
		return fmt.Errorf("validating template: %w", err)
	}
	logrus.Debugf("[AWS] Template needs capabilities %v", out.Capabilities)
	return nil
}

func (a *AWS) DescribeStack(ctx context.Context, name string) (*StackInfo, error) {
	out, err := a.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(name),
	})
	if isStackNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if len(out.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStackNotFound, name)
	}
	return stackInfo(&out.Stacks[0]), nil
}

// StackTemplate returns the template the stack was last deployed with, as
// it was sent.
func (a *AWS) StackTemplate(ctx context.Context, name string) (string, error) {
	out, err := a.cfn.GetTemplate(ctx, &cloudformation.GetTemplateInput{
		StackName:     aws.String(name),
		TemplateStage: cfntypes.TemplateStageOriginal,
	})
	if isStackNotFound(err) {
		return "", fmt.Errorf("%w: %s", ErrStackNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return aws.ToString(out.TemplateBody), nil
}

type DeployOptions struct {
	StackName string
	Template  Template
	Tags      map[string]string
	// Wait blocks until the stack settles, for at most Timeout.
	Wait    bool
	Timeout time.Duration
}

type DeployResult struct {
	StackID   string
	Operation string
	// Changed is false when the stack already matched the template.
	Changed bool
}

func (o DeployOptions) tags() []cfntypes.Tag {
	keys := make([]string, 0, len(o.Tags))
	for k := range o.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tags []cfntypes.Tag
	for _, k := range keys {
		tags = append(tags, cfntypes.Tag{Key: aws.String(k), Value: aws.String(o.Tags[k])})
	}
	return tags
}

func (o DeployOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultStackTimeout
	}
	return o.Timeout
}

// DeployStack creates the stack, or updates it when it already exists.
// Failed resources are rolled back by CloudFormation and nothing is
// retried here.
func (a *AWS) DeployStack(ctx context.Context, options DeployOptions) (*DeployResult, error) {
	if err := options.Template.check(); err != nil {
		return nil, err
	}

	existing, err := a.DescribeStack(ctx, options.StackName)
	switch {
	case errors.Is(err, ErrStackNotFound):
		return a.createStack(ctx, options)
	case err != nil:
		return nil, err
	case existing.InProgress():
		return nil, fmt.Errorf("%w: %s is %s", ErrStackBusy, options.StackName, existing.Status)
	case existing.Status == string(cfntypes.StackStatusRollbackComplete):
		return nil, fmt.Errorf("stack %s failed to create and was rolled back, destroy it before deploying again", options.StackName)
	}
	return a.updateStack(ctx, existing, options)
}

func (a *AWS) createStack(ctx context.Context, options DeployOptions) (*DeployResult, error) {
	observe := prometheus.ObserveStackOperation(OperationCreate)
	defer observe()

	logrus.Infof("[AWS] 🏗 Creating stack %s", options.StackName)
	out, err := a.cfn.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:          aws.String(options.StackName),
		TemplateBody:       options.Template.body(),
		TemplateURL:        options.Template.url(),
		Capabilities:       []cfntypes.Capability{cfntypes.CapabilityCapabilityIam},
		ClientRequestToken: aws.String(ClientRequestToken()),
		OnFailure:          cfntypes.OnFailureRollback,
		Tags:               options.tags(),
	})
	if err != nil {
		prometheus.CountStackOperation(OperationCreate, prometheus.ResultFailure)
		return nil, fmt.Errorf("creating stack %s: %w", options.StackName, err)
	}
	result := &DeployResult{
		StackID:   aws.ToString(out.StackId),
		Operation: OperationCreate,
		Changed:   true,
	}

	if options.Wait {
		logrus.Infof("[AWS] 🚚 Waiting for stack %s to be created", options.StackName)
		waiter := cloudformation.NewStackCreateCompleteWaiter(a.cfn)
		err = waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: out.StackId}, options.timeout())
		if err != nil {
			prometheus.CountStackOperation(OperationCreate, prometheus.ResultFailure)
			return result, a.waitError(ctx, options.StackName, err)
		}
		logrus.Infof("[AWS] 🎉 Stack %s created", options.StackName)
	}
	prometheus.CountStackOperation(OperationCreate, prometheus.ResultSuccess)
	return result, nil
}

func (a *AWS) updateStack(ctx context.Context, existing *StackInfo, options DeployOptions) (*DeployResult, error) {
	observe := prometheus.ObserveStackOperation(OperationUpdate)
	defer observe()

	result := &DeployResult{
		StackID:   existing.ID,
		Operation: OperationUpdate,
	}

	logrus.Infof("[AWS] 🔧 Updating stack %s (%s)", options.StackName, existing.Status)
	_, err := a.cfn.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:          aws.String(existing.ID),
		TemplateBody:       options.Template.body(),
		TemplateURL:        options.Template.url(),
		Capabilities:       []cfntypes.Capability{cfntypes.CapabilityCapabilityIam},
		ClientRequestToken: aws.String(ClientRequestToken()),
		Tags:               options.tags(),
	})
	if isNoUpdates(err) {
		logrus.Infof("[AWS] Stack %s is up to date", options.StackName)
		prometheus.CountStackOperation(OperationUpdate, prometheus.ResultUnchanged)
		return result, nil
	}
	if err != nil {
		prometheus.CountStackOperation(OperationUpdate, prometheus.ResultFailure)
		return nil, fmt.Errorf("updating stack %s: %w", options.StackName, err)
	}
	result.Changed = true

	if options.Wait {
		logrus.Infof("[AWS] 🚚 Waiting for stack %s to be updated", options.StackName)
		waiter := cloudformation.NewStackUpdateCompleteWaiter(a.cfn)
		err = waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(existing.ID)}, options.timeout())
		if err != nil {
			prometheus.CountStackOperation(OperationUpdate, prometheus.ResultFailure)
			return result, a.waitError(ctx, options.StackName, err)
		}
		logrus.Infof("[AWS] 🎉 Stack %s updated", options.StackName)
	}
	prometheus.CountStackOperation(OperationUpdate, prometheus.ResultSuccess)
	return result, nil
}

// DeleteStack deletes the stack. Resources with a retain policy, like the
// image repository and the artifact bucket, are left behind. Deleting a
// stack that does not exist is not an error.
func (a *AWS) DeleteStack(ctx context.Context, name string, wait bool, timeout time.Duration) error {
	observe := prometheus.ObserveStackOperation(OperationDelete)
	defer observe()

	existing, err := a.DescribeStack(ctx, name)
	if errors.Is(err, ErrStackNotFound) {
		logrus.Infof("[AWS] Stack %s does not exist, nothing to delete", name)
		prometheus.CountStackOperation(OperationDelete, prometheus.ResultUnchanged)
		return nil
	}
	if err != nil {
		return err
	}

	logrus.Infof("[AWS] 🧹 Deleting stack %s", name)
	_, err = a.cfn.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName:          aws.String(existing.ID),
		ClientRequestToken: aws.String(ClientRequestToken()),
	})
	if err != nil {
		prometheus.CountStackOperation(OperationDelete, prometheus.ResultFailure)
		return fmt.Errorf("deleting stack %s: %w", name, err)
	}

	if wait {
		if timeout <= 0 {
			timeout = DefaultStackTimeout
		}
		logrus.Infof("[AWS] 🚚 Waiting for stack %s to be deleted", name)
		waiter := cloudformation.NewStackDeleteCompleteWaiter(a.cfn)
		err = waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(existing.ID)}, timeout)
		if err != nil {
			prometheus.CountStackOperation(OperationDelete, prometheus.ResultFailure)
			return a.waitError(ctx, name, err)
		}
		logrus.Infof("[AWS] 🎉 Stack %s deleted", name)
	}
	prometheus.CountStackOperation(OperationDelete, prometheus.ResultSuccess)
	return nil
}

// waitError adds the stack's status reason to a failed wait, which usually
// names the resource that broke the operation.
func (a *AWS) waitError(ctx context.Context, name string, err error) error {
	info, derr := a.DescribeStack(ctx, name)
	if derr != nil {
		logrus.Warnf("[AWS] Unable to describe stack %s after failed wait: %v", name, derr)
		return fmt.Errorf("waiting for stack %s: %w", name, err)
	}
	return fmt.Errorf("waiting for stack %s: ended in %s (%s): %w", name, info.Status, info.StatusReason, err)
}
